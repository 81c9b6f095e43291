/*
Package correction normalises a damage submission against the current progress.

PURPOSE:
  Members report damage by hand, so reports drift from the boss's real
  remaining HP. Apply rewrites the submission into the record that is
  actually appended and lists every adjustment as a Note.

RULES (in order):
  0. TAIL without damage: on an explicit past target the damage is
     required (ErrMissingTailDamage); otherwise it is the remaining HP.
  1. The member's previous record of the clan day is TAIL: this record is
     a LEFTOVER.
  2. Target differs from the current boss: stored as declared, NoteMismatch.
  3. Target is the current boss, with Epsilon = 30000:
     - damage > remaining + Epsilon: clamp to remaining, NORMAL becomes TAIL
     - TAIL, damage < remaining - Epsilon: NoteTailTooLow
     - TAIL, damage in [remaining - Epsilon, remaining): a multiple of 1000
       snaps to remaining, anything else is NoteSlightlyLow

SEE ALSO:
  - manager/runs.go: SubmitRun calls Apply between two progress folds
*/
package correction

import (
	"fmt"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/progress"
)

const (
	// Epsilon is the tolerance between reported damage and remaining HP.
	Epsilon int64 = 30000

	// SnapUnit marks a rounded report: TAIL damage divisible by it is
	// taken to mean "the rest of the boss".
	SnapUnit int64 = 1000
)

// =============================================================================
// NOTES
// =============================================================================

type Note int

const (
	NoteRetagLeftover Note = iota + 1
	NoteMismatch
	NoteDamageClamped
	NoteRetagTail
	NoteTailTooLow
	NoteTailSnapped
	NoteSlightlyLow
)

func (n Note) String() string {
	switch n {
	case NoteRetagLeftover:
		return "retagged_leftover"
	case NoteMismatch:
		return "progress_mismatch"
	case NoteDamageClamped:
		return "damage_clamped"
	case NoteRetagTail:
		return "retagged_tail"
	case NoteTailTooLow:
		return "tail_too_low"
	case NoteTailSnapped:
		return "tail_snapped"
	case NoteSlightlyLow:
		return "slightly_low"
	default:
		return "unknown"
	}
}

// =============================================================================
// APPLY
// =============================================================================

// Submission is a declared run. Round and Boss are zero when the member did
// not name a target, in which case the current boss is meant.
type Submission struct {
	Round  int
	Boss   int
	Damage int64
	Flag   battle.RecordFlag
}

// Explicit reports whether the member named a round or boss.
func (s Submission) Explicit() bool { return s.Round != 0 || s.Boss != 0 }

// Outcome is the record to append plus the adjustments made on the way.
type Outcome struct {
	Target battle.Target
	Damage int64
	Flag   battle.RecordFlag
	Notes  []Note
}

func (o Outcome) Has(n Note) bool {
	for _, x := range o.Notes {
		if x == n {
			return true
		}
	}
	return false
}

// Apply corrects sub against the current progress. prior is the member's
// latest record of the same clan day, or nil.
func Apply(sub Submission, current progress.State, prior *battle.RunRecord) (Outcome, error) {
	if sub.Damage < 0 {
		return Outcome{}, fmt.Errorf("%w: %d", battle.ErrInvalidDamage, sub.Damage)
	}

	out := Outcome{
		Target: current.Target,
		Damage: sub.Damage,
		Flag:   sub.Flag,
	}
	if sub.Round != 0 {
		out.Target.Round = sub.Round
	}
	if sub.Boss != 0 {
		out.Target.Boss = sub.Boss
	}
	if err := out.Target.Validate(); err != nil {
		return Outcome{}, err
	}
	atCurrent := out.Target == current.Target

	if out.Flag == battle.FlagLost {
		out.Damage = 0
	}

	if out.Flag == battle.FlagTail && out.Damage == 0 {
		if sub.Explicit() && !atCurrent {
			return Outcome{}, fmt.Errorf("%w: %s", battle.ErrMissingTailDamage, out.Target)
		}
		out.Damage = current.Remaining
	}

	if prior != nil && prior.Flag == battle.FlagTail {
		out.Flag = battle.FlagLeftover
		out.Notes = append(out.Notes, NoteRetagLeftover)
	}

	if !atCurrent {
		out.Notes = append(out.Notes, NoteMismatch)
		return out, nil
	}

	remaining := current.Remaining
	switch {
	case out.Damage > remaining+Epsilon:
		out.Damage = remaining
		out.Notes = append(out.Notes, NoteDamageClamped)
		if out.Flag == battle.FlagNormal {
			out.Flag = battle.FlagTail
			out.Notes = append(out.Notes, NoteRetagTail)
		}
	case out.Flag == battle.FlagTail && out.Damage < remaining-Epsilon:
		out.Notes = append(out.Notes, NoteTailTooLow)
	case out.Flag == battle.FlagTail && out.Damage < remaining:
		if out.Damage%SnapUnit == 0 {
			out.Damage = remaining
			out.Notes = append(out.Notes, NoteTailSnapped)
		} else {
			out.Notes = append(out.Notes, NoteSlightlyLow)
		}
	}
	return out, nil
}
