package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var (
	testKey = battle.PartitionKey{GroupID: 1001, ClanID: 1, Year: 2026, Month: time.October}
	alice   = battle.MemberKey{UserID: 11, AltID: 1001}
	bob     = battle.MemberKey{UserID: 22, AltID: 1001}
)

// =============================================================================
// PARTITIONS
// =============================================================================

func TestSQLite_UnwrittenPartitionReadsEmpty(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	runs, err := store.ListRuns(ctx, testKey)
	require.NoError(t, err)
	assert.Empty(t, runs)

	entries, err := store.ListEntries(ctx, testKey)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = store.GetRun(ctx, testKey, 1)
	assert.ErrorIs(t, err, battle.ErrRecordNotFound)
}

func TestSQLite_ListRunsOrderedByTargetThenID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.October, 25, 12, 0, 0, 0, time.UTC)

	// GIVEN: records appended out of target order
	appendRun := func(m battle.MemberKey, round, boss int, dmg int64) battle.RunID {
		id, err := store.AppendRun(ctx, testKey, battle.RunRecord{
			Member: m, SubmittedAt: now, Target: battle.Target{Round: round, Boss: boss}, Damage: dmg,
		})
		require.NoError(t, err)
		return id
	}
	third := appendRun(alice, 1, 2, 300)
	first := appendRun(bob, 1, 1, 100)
	second := appendRun(alice, 1, 1, 200)

	// WHEN
	runs, err := store.ListRuns(ctx, testKey)
	require.NoError(t, err)

	// THEN
	require.Len(t, runs, 3)
	assert.Equal(t, []battle.RunID{first, second, third}, []battle.RunID{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.True(t, runs[0].SubmittedAt.Equal(now))

	mine, err := store.ListRunsByMember(ctx, testKey, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestSQLite_PartitionsAreIsolated(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	other := testKey
	other.Month = time.November

	_, err := store.AppendRun(ctx, testKey, battle.RunRecord{Member: alice, Target: battle.Target{Round: 1, Boss: 1}, Damage: 1})
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSQLite_UpdateAndDeleteRun(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	id, err := store.AppendRun(ctx, testKey, battle.RunRecord{Member: alice, Target: battle.Target{Round: 1, Boss: 1}, Damage: 100})
	require.NoError(t, err)

	rec, err := store.GetRun(ctx, testKey, id)
	require.NoError(t, err)
	rec.Damage = 500
	rec.Flag = battle.FlagTail
	require.NoError(t, store.UpdateRun(ctx, testKey, rec))

	got, err := store.GetRun(ctx, testKey, id)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Damage)
	assert.Equal(t, battle.FlagTail, got.Flag)

	require.NoError(t, store.DeleteRun(ctx, testKey, id))
	assert.ErrorIs(t, store.DeleteRun(ctx, testKey, id), battle.ErrRecordNotFound)
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func TestSQLite_AppendEntriesReturnsIDsInOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	target := battle.Target{Round: 2, Boss: 3}

	ids, err := store.AppendEntries(ctx, testKey, []battle.Entry{
		{Member: alice, Target: target, Flag: battle.EntryWhole},
		{Member: alice, Target: target, Flag: battle.EntryLocked, Message: "whole"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Less(t, ids[0], ids[1])

	entries, err := store.ListEntries(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, battle.EntryLocked, entries[1].Flag)
	assert.Equal(t, "whole", entries[1].Message)
}

func TestSQLite_UpdateEntriesIsAtomic(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	id, err := store.AppendEntry(ctx, testKey, battle.Entry{Member: alice, Target: battle.Target{Round: 1, Boss: 1}})
	require.NoError(t, err)

	// WHEN: the batch contains an unknown id
	err = store.UpdateEntries(ctx, testKey, []battle.Entry{
		{ID: id, Member: alice, Target: battle.Target{Round: 1, Boss: 1}, Flag: battle.EntryCancel},
		{ID: id + 100, Member: bob, Target: battle.Target{Round: 1, Boss: 1}, Flag: battle.EntryCancel},
	})

	// THEN: nothing was written
	assert.ErrorIs(t, err, battle.ErrEntryNotFound)
	got, err := store.GetEntry(ctx, testKey, id)
	require.NoError(t, err)
	assert.Equal(t, battle.EntryNormal, got.Flag)
}

// =============================================================================
// CLANS & MEMBERS
// =============================================================================

func TestSQLite_ClanLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	clan := battle.Clan{GroupID: 1001, ClanID: 1, Name: "Lambda", Server: battle.ServerCN}

	require.NoError(t, store.AddClan(ctx, clan))
	assert.ErrorIs(t, store.AddClan(ctx, clan), battle.ErrClanExists)

	clan.Server = battle.ServerJP
	require.NoError(t, store.ModifyClan(ctx, clan))

	got, err := store.GetClan(ctx, 1001, 1)
	require.NoError(t, err)
	assert.Equal(t, clan, got)

	all, err := store.ListAllClans(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.RemoveClan(ctx, 1001, 1))
	_, err = store.GetClan(ctx, 1001, 1)
	assert.ErrorIs(t, err, battle.ErrClanNotFound)
}

func TestSQLite_MemberLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMember(ctx, battle.Member{MemberKey: alice, Name: "alice", GroupID: 1001, ClanID: 1}))
	require.NoError(t, store.AddMember(ctx, battle.Member{MemberKey: bob, Name: "bob", GroupID: 1001, ClanID: 1}))
	assert.ErrorIs(t,
		store.AddMember(ctx, battle.Member{MemberKey: bob, Name: "bob", GroupID: 1001, ClanID: 1}),
		battle.ErrMemberExists)

	require.NoError(t, store.ModifyMember(ctx, battle.Member{MemberKey: bob, Name: "robert", GroupID: 1001, ClanID: 1}))
	got, err := store.GetMember(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "robert", got.Name)

	members, err := store.ListMembers(ctx, 1001, 0)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	n, err := store.RemoveMembers(ctx, 1001, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, store.RemoveMember(ctx, alice), battle.ErrMemberNotFound)
}

// =============================================================================
// CORRUPT ROWS
// =============================================================================

func TestSQLite_CorruptTimeIsReported(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clan.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Date(2026, time.October, 25, 12, 0, 0, 0, time.UTC)
	_, err = store.AppendRun(ctx, testKey, battle.RunRecord{
		Member: alice, SubmittedAt: now, Target: battle.Target{Round: 1, Boss: 1}, Damage: 1000,
	})
	require.NoError(t, err)
	_, err = store.AppendEntries(ctx, testKey, []battle.Entry{
		{Member: bob, SubmittedAt: now, Target: battle.Target{Round: 1, Boss: 2}, Flag: battle.EntryNormal},
	})
	require.NoError(t, err)

	// GIVEN: both rows lose their timestamp outside the store
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer raw.Close()
	for _, table := range []string{testKey.RunTable(), testKey.SubscribeTable()} {
		_, err = raw.ExecContext(ctx, fmt.Sprintf("UPDATE %q SET time = 'yesterday'", table))
		require.NoError(t, err)
	}

	// THEN: reads fail instead of returning zero times
	_, err = store.ListRuns(ctx, testKey)
	assert.ErrorIs(t, err, battle.ErrStorage)
	_, err = store.ListEntries(ctx, testKey)
	assert.ErrorIs(t, err, battle.ErrStorage)
}
