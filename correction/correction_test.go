package correction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/correction"
	"github.com/warp/clanbattle/progress"
)

var current = progress.State{
	Target:    battle.Target{Round: 2, Boss: 3},
	Remaining: 600000,
	TotalHP:   1000000,
}

func TestApply_Corrections(t *testing.T) {
	tests := []struct {
		name       string
		sub        correction.Submission
		wantDamage int64
		wantFlag   battle.RecordFlag
		wantNotes  []correction.Note
	}{
		{
			name:       "overshoot is clamped and retagged tail",
			sub:        correction.Submission{Damage: 650000, Flag: battle.FlagNormal},
			wantDamage: 600000,
			wantFlag:   battle.FlagTail,
			wantNotes:  []correction.Note{correction.NoteDamageClamped, correction.NoteRetagTail},
		},
		{
			name:       "overshoot within epsilon is kept",
			sub:        correction.Submission{Damage: 620000, Flag: battle.FlagNormal},
			wantDamage: 620000,
			wantFlag:   battle.FlagNormal,
		},
		{
			name:       "leftover overshoot is clamped but keeps its flag",
			sub:        correction.Submission{Damage: 900000, Flag: battle.FlagLeftover},
			wantDamage: 600000,
			wantFlag:   battle.FlagLeftover,
			wantNotes:  []correction.Note{correction.NoteDamageClamped},
		},
		{
			name:       "tail far below remaining is flagged",
			sub:        correction.Submission{Damage: 500000, Flag: battle.FlagTail},
			wantDamage: 500000,
			wantFlag:   battle.FlagTail,
			wantNotes:  []correction.Note{correction.NoteTailTooLow},
		},
		{
			name:       "rounded tail snaps to remaining",
			sub:        correction.Submission{Damage: 590000, Flag: battle.FlagTail},
			wantDamage: 600000,
			wantFlag:   battle.FlagTail,
			wantNotes:  []correction.Note{correction.NoteTailSnapped},
		},
		{
			name:       "unrounded tail slightly low is kept",
			sub:        correction.Submission{Damage: 590123, Flag: battle.FlagTail},
			wantDamage: 590123,
			wantFlag:   battle.FlagTail,
			wantNotes:  []correction.Note{correction.NoteSlightlyLow},
		},
		{
			name:       "tail without damage takes the remaining hp",
			sub:        correction.Submission{Flag: battle.FlagTail},
			wantDamage: 600000,
			wantFlag:   battle.FlagTail,
		},
		{
			name:       "past target is stored as declared",
			sub:        correction.Submission{Round: 2, Boss: 1, Damage: 5000000, Flag: battle.FlagNormal},
			wantDamage: 5000000,
			wantFlag:   battle.FlagNormal,
			wantNotes:  []correction.Note{correction.NoteMismatch},
		},
		{
			name:       "lost run carries no damage",
			sub:        correction.Submission{Damage: 123, Flag: battle.FlagLost},
			wantDamage: 0,
			wantFlag:   battle.FlagLost,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := correction.Apply(tc.sub, current, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.wantDamage, out.Damage)
			assert.Equal(t, tc.wantFlag, out.Flag)
			assert.Equal(t, tc.wantNotes, out.Notes)
		})
	}
}

func TestApply_RemainingPlus50000BecomesTail(t *testing.T) {
	out, err := correction.Apply(correction.Submission{
		Damage: current.Remaining + 50000,
		Flag:   battle.FlagNormal,
	}, current, nil)

	require.NoError(t, err)
	assert.Equal(t, current.Remaining, out.Damage)
	assert.Equal(t, battle.FlagTail, out.Flag)
	assert.Equal(t, current.Target, out.Target)
}

func TestApply_AfterTailIsLeftover(t *testing.T) {
	prior := &battle.RunRecord{Flag: battle.FlagTail}

	out, err := correction.Apply(correction.Submission{Damage: 100000, Flag: battle.FlagNormal}, current, prior)

	require.NoError(t, err)
	assert.Equal(t, battle.FlagLeftover, out.Flag)
	assert.True(t, out.Has(correction.NoteRetagLeftover))
}

func TestApply_ExplicitPastTailNeedsDamage(t *testing.T) {
	_, err := correction.Apply(correction.Submission{Round: 1, Boss: 5, Flag: battle.FlagTail}, current, nil)

	assert.ErrorIs(t, err, battle.ErrMissingTailDamage)
	assert.ErrorIs(t, err, battle.ErrInvalidArgument)
}

func TestApply_ExplicitCurrentTailFillsRemaining(t *testing.T) {
	out, err := correction.Apply(correction.Submission{Round: 2, Boss: 3, Flag: battle.FlagTail}, current, nil)

	require.NoError(t, err)
	assert.Equal(t, current.Remaining, out.Damage)
}

func TestApply_RejectsBadInput(t *testing.T) {
	_, err := correction.Apply(correction.Submission{Damage: -1}, current, nil)
	assert.ErrorIs(t, err, battle.ErrInvalidDamage)

	_, err = correction.Apply(correction.Submission{Boss: 7, Damage: 1}, current, nil)
	assert.ErrorIs(t, err, battle.ErrInvalidBossCode)
}
