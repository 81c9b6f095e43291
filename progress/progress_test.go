package progress_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/battle/memstore"
	"github.com/warp/clanbattle/progress"
)

const testTablesYAML = `
servers:
  CN:
    - tier: 1
      start_round: 1
      end_round: 3
      boss_hp: [100000, 200000, 300000, 400000, 500000]
      score_rate: [1.0, 1.1, 1.2, 1.3, 1.5]
    - tier: 2
      start_round: 4
      end_round: -1
      boss_hp: [1000000, 2000000, 3000000, 4000000, 5000000]
      score_rate: [2.0, 2.0, 2.5, 2.5, 3.0]
`

func testTables(t *testing.T) progress.Tables {
	t.Helper()
	tb, err := progress.ParseTables([]byte(testTablesYAML))
	require.NoError(t, err)
	return tb
}

func run(round, boss int, dmg int64) battle.RunRecord {
	return battle.RunRecord{Target: battle.Target{Round: round, Boss: boss}, Damage: dmg}
}

// =============================================================================
// TIER LOOKUP
// =============================================================================

func TestBossInfo_FirstCoveringTier(t *testing.T) {
	tb := testTables(t)

	info, err := tb.BossInfo(battle.ServerCN, battle.Target{Round: 3, Boss: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(500000), info.TotalHP)
	assert.Equal(t, 1, info.Tier)
	assert.True(t, info.ScoreRate.Equal(decimal.RequireFromString("1.5")))

	// open-ended tier
	tier, err := tb.CurrentTier(battle.ServerCN, 120)
	require.NoError(t, err)
	assert.Equal(t, 2, tier)
}

func TestBossInfo_Errors(t *testing.T) {
	tb := testTables(t)

	_, err := tb.BossInfo(battle.ServerCN, battle.Target{Round: 1, Boss: 6})
	assert.ErrorIs(t, err, battle.ErrInvalidBossCode)

	_, err = tb.BossInfo(battle.ServerJP, battle.Target{Round: 1, Boss: 1})
	assert.ErrorIs(t, err, battle.ErrInvalidTier)
	assert.ErrorIs(t, err, battle.ErrInvalidArgument)
}

func TestScore_RoundsRateTimesDamage(t *testing.T) {
	tb := testTables(t)

	score, err := tb.Score(battle.ServerCN, battle.Target{Round: 1, Boss: 2}, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(13580), score) // 1.1 * 12345 = 13579.5
}

func TestParseTables_RejectsShortRows(t *testing.T) {
	_, err := progress.ParseTables([]byte(`
servers:
  JP:
    - tier: 1
      start_round: 1
      end_round: -1
      boss_hp: [1, 2, 3]
      score_rate: [1, 1, 1, 1, 1]
`))
	assert.ErrorIs(t, err, battle.ErrInvalidTier)
}

func TestDefaultTables_CoverEveryServer(t *testing.T) {
	tb := progress.DefaultTables()
	for _, s := range []battle.Server{battle.ServerJP, battle.ServerTW, battle.ServerCN} {
		_, err := tb.BossInfo(s, battle.Target{Round: 1, Boss: 1})
		assert.NoError(t, err, s.String())
		_, err = tb.BossInfo(s, battle.Target{Round: 500, Boss: 5})
		assert.NoError(t, err, s.String())
	}
}

// =============================================================================
// FOLD
// =============================================================================

func TestFold(t *testing.T) {
	tb := testTables(t)

	tests := []struct {
		name string
		runs []battle.RunRecord
		want progress.State
	}{
		{
			name: "empty ledger starts at first boss",
			want: progress.State{Target: battle.Target{Round: 1, Boss: 1}, Remaining: 100000, TotalHP: 100000},
		},
		{
			name: "partial damage on first boss",
			runs: []battle.RunRecord{run(1, 1, 40000)},
			want: progress.State{Target: battle.Target{Round: 1, Boss: 1}, Remaining: 60000, TotalHP: 100000},
		},
		{
			name: "killed boss advances at full hp",
			runs: []battle.RunRecord{run(1, 1, 40000), run(1, 1, 60000)},
			want: progress.State{Target: battle.Target{Round: 1, Boss: 2}, Remaining: 200000, TotalHP: 200000},
		},
		{
			name: "only trailing target counts",
			runs: []battle.RunRecord{run(1, 1, 100000), run(1, 2, 50000), run(1, 2, 25000)},
			want: progress.State{Target: battle.Target{Round: 1, Boss: 2}, Remaining: 125000, TotalHP: 200000},
		},
		{
			name: "fifth boss wraps into next round",
			runs: []battle.RunRecord{run(3, 5, 500000)},
			want: progress.State{Target: battle.Target{Round: 4, Boss: 1}, Remaining: 1000000, TotalHP: 1000000},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := progress.Fold(tc.runs, tb, battle.ServerCN)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEngine_CurrentReadsStore(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	key := battle.PartitionKey{GroupID: 1, ClanID: 1, Year: 2026, Month: 10}
	engine := progress.NewEngine(store, testTables(t))

	// GIVEN: records appended out of order still fold in (round, boss, id) order
	_, err := store.AppendRun(ctx, key, run(1, 2, 10000))
	require.NoError(t, err)
	_, err = store.AppendRun(ctx, key, run(1, 1, 100000))
	require.NoError(t, err)

	state, err := engine.Current(ctx, key, battle.ServerCN)
	require.NoError(t, err)
	assert.Equal(t, battle.Target{Round: 1, Boss: 2}, state.Target)
	assert.Equal(t, int64(190000), state.Remaining)
}
