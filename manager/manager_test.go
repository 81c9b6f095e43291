package manager_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/battle/memstore"
	"github.com/warp/clanbattle/correction"
	"github.com/warp/clanbattle/manager"
	"github.com/warp/clanbattle/progress"
)

const group int64 = 1001

const tablesYAML = `
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

var (
	alice = battle.Actor{UserID: 11}
	bob   = battle.Actor{UserID: 22}
	carol = battle.Actor{UserID: 33}
	admin = battle.Actor{UserID: 99, Admin: true}

	// 12:00 in UTC+8, clan day 2026-10-23.
	start = time.Date(2026, time.October, 23, 4, 0, 0, 0, time.UTC)
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type names map[int64]string

func (n names) ResolveName(_ context.Context, _ int64, userID int64) (string, error) {
	name, ok := n[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return name, nil
}

type fixture struct {
	m     *manager.Manager
	store *memstore.Memory
	feed  *manager.Feed
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, memstore.New(), zap.NewNop())
}

func newFixtureWith(t *testing.T, store battle.Store, logger *zap.Logger) *fixture {
	t.Helper()
	tables, err := progress.ParseTables([]byte(tablesYAML))
	require.NoError(t, err)

	f := &fixture{feed: manager.NewFeed(50), clock: &clock{now: start}}
	if mem, ok := store.(*memstore.Memory); ok {
		f.store = mem
	}
	f.m = manager.New(group, manager.Dependencies{
		Store:          store,
		Tables:         tables,
		Names:          names{11: "Alice", 22: "Bob", 33: "Carol"},
		Notifier:       f.feed,
		Logger:         logger,
		Clock:          f.clock.Now,
		SubscribeLimit: 3,
		BatchLimit:     3,
	})
	return f
}

// withClan registers a CN clan with alice, bob and carol as members.
func (f *fixture) withClan(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	_, err := f.m.AddClan(ctx, admin, "Warp", battle.ServerCN)
	require.NoError(t, err)
	for _, a := range []battle.Actor{alice, bob, carol} {
		_, _, err := f.m.AddMember(ctx, a, 0, "")
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) submit(t *testing.T, a battle.Actor, sub manager.RunSubmission) manager.RunReport {
	t.Helper()
	report, err := f.m.SubmitRun(context.Background(), a, sub)
	require.NoError(t, err)
	return report
}

func (f *fixture) kinds() []manager.NotificationKind {
	var out []manager.NotificationKind
	for _, n := range f.feed.List(group) {
		out = append(out, n.Kind)
	}
	return out
}

func at(round, boss int) battle.Target { return battle.Target{Round: round, Boss: boss} }

// =============================================================================
// SUBMIT RUN
// =============================================================================

func TestSubmitRun_ClampsOverflowAndAdvances(t *testing.T) {
	f := newFixture(t).withClan(t)

	// GIVEN: boss (1,1) with 100000 HP
	// WHEN: alice hits for 40000
	first := f.submit(t, alice, manager.RunSubmission{Damage: 40000})

	// THEN: the record is stored as is and 60000 HP remain
	assert.Equal(t, at(1, 1), first.Record.Target)
	assert.Equal(t, int64(40000), first.Record.Damage)
	assert.Equal(t, battle.FlagNormal, first.Record.Flag)
	assert.Equal(t, at(1, 1), first.After.Target)
	assert.Equal(t, int64(60000), first.After.Remaining)
	assert.False(t, first.ProgressChanged())

	// WHEN: she reports far more than the boss has left
	second := f.submit(t, alice, manager.RunSubmission{Damage: 90001})

	// THEN: the damage is clamped, the run becomes a tail, the clan moves on
	assert.Equal(t, int64(60000), second.Record.Damage)
	assert.Equal(t, battle.FlagTail, second.Record.Flag)
	assert.Contains(t, second.Notes, correction.NoteDamageClamped)
	assert.Contains(t, second.Notes, correction.NoteRetagTail)
	assert.Equal(t, at(1, 2), second.After.Target)
	assert.Equal(t, int64(200000), second.After.Remaining)
	assert.Equal(t, 1, second.After.Tier)
	assert.True(t, second.ProgressChanged())
}

func TestSubmitRun_ToleranceBoundaryIsNotClamped(t *testing.T) {
	f := newFixture(t).withClan(t)
	f.submit(t, alice, manager.RunSubmission{Damage: 40000})

	// Exactly remaining + 30000 is inside the tolerance.
	report := f.submit(t, alice, manager.RunSubmission{Damage: 90000})

	assert.Equal(t, int64(90000), report.Record.Damage)
	assert.Equal(t, battle.FlagNormal, report.Record.Flag)
	assert.Empty(t, report.Notes)
	assert.Equal(t, at(1, 2), report.After.Target)
	assert.Equal(t, int64(200000), report.After.Remaining)
}

func TestSubmitRun_RunAfterTailIsLeftover(t *testing.T) {
	f := newFixture(t).withClan(t)

	tail := f.submit(t, alice, manager.RunSubmission{Flag: battle.FlagTail})
	assert.Equal(t, int64(100000), tail.Record.Damage)
	assert.Equal(t, battle.FlagTail, tail.Record.Flag)

	next := f.submit(t, alice, manager.RunSubmission{Damage: 20000})
	assert.Equal(t, battle.FlagLeftover, next.Record.Flag)
	assert.Equal(t, at(1, 2), next.Record.Target)
	assert.Contains(t, next.Notes, correction.NoteRetagLeftover)

	// A tail on an earlier clan day does not carry over.
	f.clock.now = start.Add(24 * time.Hour)
	fresh := f.submit(t, alice, manager.RunSubmission{Damage: 20000})
	assert.Equal(t, battle.FlagNormal, fresh.Record.Flag)
}

func TestSubmitRun_LostRecordsNoDamage(t *testing.T) {
	f := newFixture(t).withClan(t)

	report := f.submit(t, bob, manager.RunSubmission{Damage: 5000, Flag: battle.FlagLost})

	assert.Equal(t, int64(0), report.Record.Damage)
	assert.Equal(t, int64(100000), report.After.Remaining)
}

func TestSubmitRun_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no clan", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.m.SubmitRun(ctx, alice, manager.RunSubmission{Damage: 1})
		assert.ErrorIs(t, err, battle.ErrClanNotFound)
	})

	t.Run("not a member", func(t *testing.T) {
		f := newFixture(t).withClan(t)
		_, err := f.m.SubmitRun(ctx, battle.Actor{UserID: 77}, manager.RunSubmission{Damage: 1})
		assert.ErrorIs(t, err, battle.ErrMemberNotFound)
	})

	t.Run("negative damage", func(t *testing.T) {
		f := newFixture(t).withClan(t)
		_, err := f.m.SubmitRun(ctx, alice, manager.RunSubmission{Damage: -1})
		assert.ErrorIs(t, err, battle.ErrInvalidDamage)
	})

	t.Run("late tail without damage", func(t *testing.T) {
		f := newFixture(t).withClan(t)
		f.submit(t, alice, manager.RunSubmission{Damage: 100000})
		_, err := f.m.SubmitRun(ctx, bob, manager.RunSubmission{Round: 1, Boss: 1, Flag: battle.FlagTail})
		assert.ErrorIs(t, err, battle.ErrMissingTailDamage)
	})

	t.Run("boss code", func(t *testing.T) {
		f := newFixture(t).withClan(t)
		_, err := f.m.SubmitRun(ctx, alice, manager.RunSubmission{Boss: 6, Damage: 1})
		assert.ErrorIs(t, err, battle.ErrInvalidBossCode)
	})
}

func TestSubmitRun_OnBehalfAndBackdated(t *testing.T) {
	f := newFixture(t).withClan(t)

	report := f.submit(t, alice, manager.RunSubmission{UserID: bob.UserID, Damage: 1000, DayOffset: 1})

	assert.Equal(t, bob.UserID, report.Record.Member.UserID)
	assert.Equal(t, "Bob", report.Member.Name)
	assert.Equal(t, start.AddDate(0, 0, -1), report.Record.SubmittedAt)

	today, err := f.m.ListRunsByDay(context.Background(), start)
	require.NoError(t, err)
	assert.Empty(t, today)

	yesterday, err := f.m.ListRunsByDay(context.Background(), start.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Len(t, yesterday, 1)
}

func TestSubmitRun_QueueHooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	// GIVEN: bob waits for (1,2), alice locked (1,1), carol is on tree
	sub, err := f.m.Subscribe(ctx, bob, 1, 2, "ub at 1:10")
	require.NoError(t, err)
	require.True(t, sub.Accepted)
	_, err = f.m.LockBoss(ctx, alice)
	require.NoError(t, err)
	_, err = f.m.OnTree(ctx, carol)
	require.NoError(t, err)

	// WHEN: alice kills (1,1)
	report := f.submit(t, alice, manager.RunSubmission{Flag: battle.FlagTail})

	// THEN: bob is called, carol leaves the tree, alice's lock is released
	require.NotNil(t, report.Call)
	require.Len(t, report.Call.Subscribers, 1)
	assert.Equal(t, bob.UserID, report.Call.Subscribers[0].Member.UserID)
	require.Len(t, report.Call.OffTree, 1)
	assert.Equal(t, carol.UserID, report.Call.OffTree[0].Member.UserID)
	require.NotNil(t, report.Unlock.Unlocked)
	assert.Nil(t, report.Unlock.Conflict)
	assert.Equal(t, []manager.NotificationKind{
		manager.KindCallSubscribers, manager.KindOffTree, manager.KindAutoUnlock,
	}, f.kinds())

	// WHEN: bob records his run on (1,2)
	report = f.submit(t, bob, manager.RunSubmission{Damage: 50000})

	// THEN: his subscription is fulfilled
	require.NotNil(t, report.Finished)
	assert.Equal(t, sub.Entry.ID, report.Finished.ID)
	assert.Equal(t, battle.EntryFinished, report.Finished.Flag)

	active, err := f.m.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSubmitRun_LockConflictIsReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	_, err := f.m.LockBoss(ctx, bob)
	require.NoError(t, err)

	report := f.submit(t, alice, manager.RunSubmission{Damage: 10000})

	require.NotNil(t, report.Unlock.Conflict)
	assert.Equal(t, bob.UserID, report.Unlock.Conflict.Member.UserID)
	assert.Contains(t, f.kinds(), manager.KindLockConflict)

	locked, err := f.m.ListLocked(ctx)
	require.NoError(t, err)
	assert.Len(t, locked, 1)

	view, err := f.m.CurrentProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, view.LockedBy)
	assert.Equal(t, bob.UserID, view.LockedBy.Member.UserID)
}

func TestSubmitRun_StorageFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := &brokenStore{Memory: memstore.New()}
	f := newFixtureWith(t, store, zap.New(core))
	ctx := context.Background()

	_, err := f.m.AddClan(ctx, admin, "Warp", battle.ServerCN)
	require.NoError(t, err)

	_, err = f.m.SubmitRun(ctx, alice, manager.RunSubmission{Damage: 1})

	require.Error(t, err)
	assert.ErrorIs(t, err, battle.ErrStorage)
	assert.False(t, battle.IsClientError(err))

	failures := logs.FilterMessage("storage failure").All()
	require.Len(t, failures, 1)
	fields := failures[0].ContextMap()
	assert.Equal(t, "fold progress", fields["op"])
	assert.Equal(t, "1001/1/2026-10", fields["partition"])
	assert.Equal(t, group, fields["group"])
}

type brokenStore struct {
	*memstore.Memory
}

func (s *brokenStore) ListRuns(context.Context, battle.PartitionKey) ([]battle.RunRecord, error) {
	return nil, errors.New("disk I/O error")
}

// =============================================================================
// RECORD MAINTENANCE & PROGRESS
// =============================================================================

func TestRemoveRun_Permissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)
	rec := f.submit(t, alice, manager.RunSubmission{Damage: 30000}).Record

	_, err := f.m.RemoveRun(ctx, bob, rec.ID)
	assert.ErrorIs(t, err, battle.ErrPermissionDenied)

	removed, err := f.m.RemoveRun(ctx, admin, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, removed.ID)

	_, err = f.m.FetchRun(ctx, rec.ID)
	assert.ErrorIs(t, err, battle.ErrRecordNotFound)

	view, err := f.m.CurrentProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), view.Remaining)
}

func TestModifyRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)
	rec := f.submit(t, alice, manager.RunSubmission{Damage: 30000}).Record

	got, err := f.m.ModifyRun(ctx, alice, manager.RunEdit{ID: rec.ID, Target: at(1, 1), Damage: 45000, Flag: battle.FlagNormal})
	require.NoError(t, err)
	assert.Equal(t, int64(45000), got.Damage)

	_, err = f.m.ModifyRun(ctx, bob, manager.RunEdit{ID: rec.ID, Target: at(1, 1), Damage: 1})
	assert.ErrorIs(t, err, battle.ErrPermissionDenied)

	_, err = f.m.ModifyRun(ctx, alice, manager.RunEdit{ID: rec.ID, Target: at(1, 1), Damage: -5})
	assert.ErrorIs(t, err, battle.ErrInvalidDamage)

	mine, err := f.m.ListRunsByUser(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(45000), mine[0].Damage)
}

func TestChangeProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	_, err := f.m.ChangeProgress(ctx, alice, 1, 3, 150000)
	assert.ErrorIs(t, err, battle.ErrPermissionDenied)

	view, err := f.m.ChangeProgress(ctx, admin, 1, 3, 150000)
	require.NoError(t, err)
	assert.Equal(t, at(1, 3), view.Target)
	assert.Equal(t, int64(150000), view.Remaining)
	assert.Equal(t, int64(300000), view.TotalHP)

	runs, err := f.m.ListRunsByDay(ctx, start)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []int64{100000, 200000, 150000}, []int64{runs[0].Damage, runs[1].Damage, runs[2].Damage})

	_, err = f.m.ChangeProgress(ctx, admin, 1, 2, 1)
	assert.ErrorIs(t, err, battle.ErrProgressBackward)
}

func TestBossInfoAndTier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	info, err := f.m.BossInfo(ctx, at(4, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(5000000), info.TotalHP)
	assert.Equal(t, 2, info.Tier)

	tier, err := f.m.CurrentTier(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, tier)

	_, err = f.m.BossInfo(ctx, at(1, 0))
	assert.ErrorIs(t, err, battle.ErrInvalidArgument)
}

// =============================================================================
// SUMMARIES
// =============================================================================

func TestSumDamageAndScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	f.submit(t, alice, manager.RunSubmission{Damage: 40000})
	f.submit(t, bob, manager.RunSubmission{Damage: 60000})
	f.submit(t, alice, manager.RunSubmission{Damage: 50000})

	damage, err := f.m.SumDamage(ctx)
	require.NoError(t, err)
	require.Len(t, damage, 3)
	assert.Equal(t, alice.UserID, damage[0].Member.UserID)
	assert.Equal(t, int64(90000), damage[0].Total)
	assert.Equal(t, [5]int64{40000, 50000, 0, 0, 0}, damage[0].ByBoss)
	assert.Equal(t, int64(60000), damage[1].Total)
	assert.Equal(t, int64(0), damage[2].Total)

	scores, err := f.m.SumScore(ctx)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, "Alice", scores[0].Member.Name)
	assert.Equal(t, int64(95000), scores[0].Score)
	assert.Equal(t, int64(60000), scores[1].Score)
}

func TestRemainRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	f.submit(t, alice, manager.RunSubmission{Damage: 40000})
	f.submit(t, alice, manager.RunSubmission{Flag: battle.FlagTail})

	remain, err := f.m.RemainRuns(ctx, start)
	require.NoError(t, err)
	byUser := map[int64]manager.RemainSummary{}
	for _, r := range remain {
		byUser[r.Member.UserID] = r
	}
	assert.Equal(t, 1, byUser[alice.UserID].Remain)
	assert.Equal(t, 1, byUser[alice.UserID].OwedLeftover)
	assert.Equal(t, 3, byUser[bob.UserID].Remain)

	f.submit(t, alice, manager.RunSubmission{Damage: 10000})

	remain, err = f.m.RemainRuns(ctx, start)
	require.NoError(t, err)
	for _, r := range remain {
		if r.Member.UserID == alice.UserID {
			assert.Equal(t, 1, r.Leftover)
			assert.Equal(t, 0, r.OwedLeftover)
			assert.Equal(t, 1, r.Remain)
		}
	}
}

func TestRemindRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)
	for i := 0; i < manager.RunsPerDay; i++ {
		f.submit(t, alice, manager.RunSubmission{Damage: 1000})
	}

	pending, err := f.m.RemindRemaining(ctx, time.Time{})
	require.NoError(t, err)

	var users []int64
	for _, r := range pending {
		users = append(users, r.Member.UserID)
	}
	assert.ElementsMatch(t, []int64{bob.UserID, carol.UserID}, users)

	feed := f.feed.List(group)
	require.NotEmpty(t, feed)
	last := feed[len(feed)-1]
	assert.Equal(t, manager.KindRemainReminder, last.Kind)
	assert.Len(t, last.Remain, 2)
}

func TestUnionRun(t *testing.T) {
	tests := []struct {
		name      string
		hp, a, b  int64
		shortfall int64
		opener    int
		finisher  int
		seconds   string
	}{
		{"not enough damage", 100, 30, 40, 30, 0, 0, "0"},
		{"both kill alone", 100, 150, 120, 0, 0, 1, "50"},
		{"first kills alone", 100, 150, 50, 0, 0, 1, "50"},
		{"second kills alone", 100, 50, 200, 0, 0, 2, "65"},
		{"bigger opens", 100, 60, 50, 0, 1, 2, "38"},
		{"equal damages", 100, 50, 50, 0, 2, 1, "20"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := manager.UnionRun(tc.hp, tc.a, tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.shortfall, plan.Shortfall)
			assert.Equal(t, tc.opener, plan.Opener)
			assert.Equal(t, tc.finisher, plan.Finisher)
			assert.True(t, decimal.RequireFromString(tc.seconds).Equal(plan.Seconds), "seconds = %s", plan.Seconds)
		})
	}

	_, err := manager.UnionRun(0, 10, 10)
	assert.ErrorIs(t, err, battle.ErrInvalidArgument)
	_, err = manager.UnionRun(100, 0, 10)
	assert.ErrorIs(t, err, battle.ErrInvalidDamage)
}

// =============================================================================
// CLANS & MEMBERS
// =============================================================================

func TestSaveClan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.m.SaveClan(ctx, alice, "Warp", battle.ServerCN)
	assert.ErrorIs(t, err, battle.ErrPermissionDenied)

	_, created, err := f.m.SaveClan(ctx, admin, "Warp", battle.ServerCN)
	require.NoError(t, err)
	assert.True(t, created)

	c, created, err := f.m.SaveClan(ctx, admin, "Warp Drive", battle.ServerJP)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Warp Drive", c.Name)

	_, err = f.m.AddClan(ctx, admin, "Again", battle.ServerCN)
	assert.ErrorIs(t, err, battle.ErrClanExists)

	got, err := f.m.FetchClan(ctx)
	require.NoError(t, err)
	assert.Equal(t, battle.ServerJP, got.Server)

	require.NoError(t, f.m.RemoveClan(ctx, admin))
	clans, err := f.m.ListClans(ctx)
	require.NoError(t, err)
	assert.Empty(t, clans)
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	// Names come from the resolver when none is given.
	mem, err := f.m.FetchMember(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", mem.Name)
	assert.Equal(t, group, mem.AltID)

	_, _, err = f.m.AddMember(ctx, alice, 44, "Dave")
	assert.ErrorIs(t, err, battle.ErrPermissionDenied)

	// Adding an existing member renames them.
	mem, added, err := f.m.AddMember(ctx, alice, 0, "Ally")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, "Ally", mem.Name)

	mem, err = f.m.ModifyMember(ctx, admin, bob.UserID, "Robert")
	require.NoError(t, err)
	assert.Equal(t, "Robert", mem.Name)

	assert.ErrorIs(t, f.m.RemoveMember(ctx, alice, bob.UserID), battle.ErrPermissionDenied)
	require.NoError(t, f.m.RemoveMember(ctx, bob, 0))

	members, err := f.m.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	n, err := f.m.ClearMembers(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBatchAddMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.m.AddClan(ctx, admin, "Warp", battle.ServerCN)
	require.NoError(t, err)

	_, err = f.m.BatchAddMembers(ctx, alice, nil)
	assert.ErrorIs(t, err, battle.ErrPermissionDenied)

	tooMany := []manager.MemberInput{{UserID: 1}, {UserID: 2}, {UserID: 3}, {UserID: 4}}
	_, err = f.m.BatchAddMembers(ctx, admin, tooMany)
	assert.ErrorIs(t, err, battle.ErrBatchTooLarge)
	assert.NotEmpty(t, battle.Usage(err))

	res, err := f.m.BatchAddMembers(ctx, admin, []manager.MemberInput{
		{UserID: alice.UserID},
		{UserID: 0, Name: "nobody"},
		{UserID: 55, Name: "Eve"},
	})
	require.NoError(t, err)
	assert.Equal(t, manager.BatchResult{Succeeded: 2, Failed: 1}, res)

	eve, err := f.m.FetchMember(ctx, 55)
	require.NoError(t, err)
	assert.Equal(t, "Eve", eve.Name)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func TestSubscribe_OmittedRoundPicksNextAppearance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	// The clan is on (1,1), so boss 1 next appears in round 2.
	res, err := f.m.Subscribe(ctx, alice, 0, 1, "")
	require.NoError(t, err)
	assert.Equal(t, at(2, 1), res.Entry.Target)

	res, err = f.m.Subscribe(ctx, alice, 0, 3, "")
	require.NoError(t, err)
	assert.Equal(t, at(1, 3), res.Entry.Target)

	_, err = f.m.Subscribe(ctx, bob, 1, 1, "")
	assert.ErrorIs(t, err, battle.ErrLateSubscribe)

	mine, err := f.m.ListUserSubscriptions(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	cancelled, err := f.m.Unsubscribe(ctx, alice, mine[0].ID)
	require.NoError(t, err)
	assert.Equal(t, battle.EntryCancel, cancelled.Flag)

	all, err := f.m.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQueueCommands_RequireMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)
	stranger := battle.Actor{UserID: 77}

	_, err := f.m.Subscribe(ctx, stranger, 1, 2, "")
	assert.ErrorIs(t, err, battle.ErrMemberNotFound)
	assert.NotEmpty(t, battle.Usage(err))

	_, err = f.m.SubscribeWhole(ctx, stranger, 1, 3, "")
	assert.ErrorIs(t, err, battle.ErrMemberNotFound)

	_, err = f.m.OnTree(ctx, stranger)
	assert.ErrorIs(t, err, battle.ErrMemberNotFound)

	all, err := f.m.ListEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// Locking the current boss stays open to anyone.
	_, err = f.m.LockBoss(ctx, stranger)
	assert.NoError(t, err)
}

func TestSubscribeWholeAndSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withClan(t)

	whole, err := f.m.SubscribeWhole(ctx, alice, 1, 2, "full run")
	require.NoError(t, err)
	require.True(t, whole.Accepted)
	require.NotNil(t, whole.Lock)

	_, err = f.m.Subscribe(ctx, bob, 1, 2, "")
	var locked *battle.AlreadyLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, alice.UserID, locked.Holder.UserID)

	moved, err := f.m.SwapRound(ctx, alice, whole.Entry.ID, 3)
	require.NoError(t, err)
	assert.Len(t, moved, 2)

	_, err = f.m.LockBossAhead(ctx, bob, 1, 2)
	assert.ErrorIs(t, err, battle.ErrSubscribeRequired)

	cleared, err := f.m.ClearTarget(ctx, admin, 3, 2)
	require.NoError(t, err)
	assert.Len(t, cleared, 1)

	_, err = f.m.UnlockBoss(ctx, alice)
	assert.ErrorIs(t, err, battle.ErrNotLocked)
}

func TestRegistry_OneManagerPerGroup(t *testing.T) {
	reg := manager.NewRegistry(manager.Dependencies{Store: memstore.New()})

	assert.Same(t, reg.Group(1), reg.Group(1))
	assert.NotSame(t, reg.Group(1), reg.Group(2))
	assert.Equal(t, int64(2), reg.Group(2).GroupID())
}
