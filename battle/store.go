/*
store.go - Persistence interfaces for clans, members, runs and subscriptions

PURPOSE:
  Defines the interface between the domain logic and the database.
  Run records and subscription entries live in ledger partitions
  addressed by PartitionKey; clans and members are group-scoped tables.

PARTITIONS:
  A partition is created lazily by its first write. Reading a partition
  that was never written returns an empty result, not an error.

ORDERING:
  ListRuns returns records ordered by (round, boss, id). This order is the
  sole input of progress derivation, so implementations must honour it.
  Subscription listings are ordered by id.

ATOMIC BATCHES:
  AppendEntries and UpdateEntries write all entries or none. A WHOLE
  subscription and its auto lock, or the two sides of a round swap, are
  never half-written.

FAILURES:
  Implementations wrap engine faults in StorageError. Absent rows are
  reported with the specific not-found sentinel (ErrRecordNotFound, ...).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite, one table per partition
  - battle/memstore/memory.go: In-memory for testing

SEE ALSO:
  - partition.go: Partition key derivation
  - progress/engine.go: Folds ListRuns into the current progress
*/
package battle

import "context"

// =============================================================================
// LEDGER STORES - Partitioned by group, clan and clan month
// =============================================================================

// RunStore persists run records per partition.
type RunStore interface {
	// AppendRun stores rec and returns its partition-local id.
	AppendRun(ctx context.Context, key PartitionKey, rec RunRecord) (RunID, error)

	GetRun(ctx context.Context, key PartitionKey, id RunID) (RunRecord, error)

	// ListRuns returns all records ordered by (round, boss, id).
	ListRuns(ctx context.Context, key PartitionKey) ([]RunRecord, error)

	ListRunsByMember(ctx context.Context, key PartitionKey, member MemberKey) ([]RunRecord, error)

	// UpdateRun rewrites the record with rec.ID.
	UpdateRun(ctx context.Context, key PartitionKey, rec RunRecord) error

	DeleteRun(ctx context.Context, key PartitionKey, id RunID) error
}

// SubscriptionStore persists subscription entries per partition.
type SubscriptionStore interface {
	AppendEntry(ctx context.Context, key PartitionKey, e Entry) (EntryID, error)

	// AppendEntries stores all entries atomically and returns their ids in order.
	AppendEntries(ctx context.Context, key PartitionKey, es []Entry) ([]EntryID, error)

	GetEntry(ctx context.Context, key PartitionKey, id EntryID) (Entry, error)

	// ListEntries returns all entries ordered by id.
	ListEntries(ctx context.Context, key PartitionKey) ([]Entry, error)

	ListEntriesByMember(ctx context.Context, key PartitionKey, member MemberKey) ([]Entry, error)

	UpdateEntry(ctx context.Context, key PartitionKey, e Entry) error

	// UpdateEntries rewrites all entries atomically.
	UpdateEntries(ctx context.Context, key PartitionKey, es []Entry) error
}

// =============================================================================
// DIRECTORY STORES - Clans and members
// =============================================================================

type ClanStore interface {
	AddClan(ctx context.Context, c Clan) error
	ModifyClan(ctx context.Context, c Clan) error
	RemoveClan(ctx context.Context, groupID, clanID int64) error
	GetClan(ctx context.Context, groupID, clanID int64) (Clan, error)
	ListClans(ctx context.Context, groupID int64) ([]Clan, error)

	// ListAllClans returns the clans of every group (used by schedulers).
	ListAllClans(ctx context.Context) ([]Clan, error)
}

type MemberStore interface {
	AddMember(ctx context.Context, m Member) error
	ModifyMember(ctx context.Context, m Member) error
	RemoveMember(ctx context.Context, key MemberKey) error
	GetMember(ctx context.Context, key MemberKey) (Member, error)

	// ListMembers filters by group and, when clanID is non-zero, by clan.
	ListMembers(ctx context.Context, groupID, clanID int64) ([]Member, error)

	// RemoveMembers deletes the members of a group's clan and returns the count.
	RemoveMembers(ctx context.Context, groupID, clanID int64) (int, error)
}

// Store bundles every persistence capability the manager needs.
type Store interface {
	RunStore
	SubscriptionStore
	ClanStore
	MemberStore
}
