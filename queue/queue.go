/*
Package queue manages boss subscriptions, boss locks and on-tree claims.

PURPOSE:
  Members queue up for future bosses (subscriptions), reserve the boss
  they are about to fight (locks), and announce they are stuck waiting
  for the next boss (on tree). All three are Entry rows of the partition's
  subscription table, told apart by their flag.

STATE MACHINE:
  NORMAL | WHOLE | LOCKED | ONTREE  ->  CANCEL | FINISHED
  Entries are never deleted. CANCEL and FINISHED are terminal.

INVARIANTS (checked before every mutation):
  - A subscription targets a boss strictly after the current one
  - At most one LOCKED entry per target
  - At most one active entry per member and target
  - Active entries per target are capped (Manager.Limit); requests over
    the cap are accepted as informational only, nothing is stored

SCOPE:
  Every operation receives a Scope: the partition, the current progress
  and the clock. The caller serialises operations per group.

SEE ALSO:
  - subscribe.go: Subscribe, SubscribeWhole, Unsubscribe, SwapRound, ClearTarget
  - lock.go: Locks, on-tree claims and progress-change hooks
*/
package queue

import (
	"context"
	"time"

	"github.com/warp/clanbattle/battle"
)

// DefaultLimit caps the active entries of one target.
const DefaultLimit = 3

// Scope is the context a queue operation runs in.
type Scope struct {
	Key       battle.PartitionKey
	Current   battle.Target
	UTCOffset int
	Now       time.Time
}

// memberOf maps an actor onto the member key used inside the partition.
func (sc Scope) memberOf(a battle.Actor) battle.MemberKey {
	return battle.MemberKey{UserID: a.UserID, AltID: sc.Key.GroupID}
}

// Manager applies queue operations to a subscription store.
type Manager struct {
	store battle.SubscriptionStore
	limit int
}

// New creates a queue manager. A limit below one falls back to DefaultLimit.
func New(store battle.SubscriptionStore, limit int) *Manager {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Manager{store: store, limit: limit}
}

func (m *Manager) Limit() int { return m.limit }

// =============================================================================
// QUERIES
// =============================================================================

// ListAll returns every entry of the partition, terminal ones included.
func (m *Manager) ListAll(ctx context.Context, sc Scope) ([]battle.Entry, error) {
	return m.store.ListEntries(ctx, sc.Key)
}

// ListActive returns the NORMAL and WHOLE entries submitted on the current
// clan day.
func (m *Manager) ListActive(ctx context.Context, sc Scope) ([]battle.Entry, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return nil, err
	}
	return filter(battle.FilterEntriesByDay(all, sc.Now, sc.UTCOffset), isActive), nil
}

// ListByUser returns the member's active entries of the current clan day.
func (m *Manager) ListByUser(ctx context.Context, sc Scope, member battle.MemberKey) ([]battle.Entry, error) {
	mine, err := m.store.ListEntriesByMember(ctx, sc.Key, member)
	if err != nil {
		return nil, err
	}
	return filter(battle.FilterEntriesByDay(mine, sc.Now, sc.UTCOffset), isActive), nil
}

// ListLocked returns all held locks of the partition.
func (m *Manager) ListLocked(ctx context.Context, sc Scope) ([]battle.Entry, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return nil, err
	}
	return filter(all, isLocked), nil
}

// ListOnTree returns the on-tree claims on the current boss.
func (m *Manager) ListOnTree(ctx context.Context, sc Scope) ([]battle.Entry, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return nil, err
	}
	return filter(onTarget(all, sc.Current), isOnTree), nil
}

// LockHolder returns the lock on target, if any.
func (m *Manager) LockHolder(ctx context.Context, sc Scope, target battle.Target) (*battle.Entry, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return nil, err
	}
	return firstLock(all, target), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isActive(e battle.Entry) bool { return e.Flag.Active() }
func isLocked(e battle.Entry) bool { return e.Flag == battle.EntryLocked }
func isOnTree(e battle.Entry) bool { return e.Flag == battle.EntryOnTree }

// isSlotted reports whether the entry occupies a (round, boss) slot that a
// swap moves.
func isSlotted(e battle.Entry) bool { return e.Flag.Active() || e.Flag == battle.EntryLocked }

func filter(es []battle.Entry, keep func(battle.Entry) bool) []battle.Entry {
	var out []battle.Entry
	for _, e := range es {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func onTarget(es []battle.Entry, t battle.Target) []battle.Entry {
	return filter(es, func(e battle.Entry) bool { return e.Target == t })
}

func firstLock(es []battle.Entry, t battle.Target) *battle.Entry {
	for _, e := range onTarget(es, t) {
		if isLocked(e) {
			e := e
			return &e
		}
	}
	return nil
}

func lockedError(lock *battle.Entry) error {
	return &battle.AlreadyLockedError{Target: lock.Target, Holder: lock.Member, Entry: lock.ID}
}

func newEntry(sc Scope, member battle.MemberKey, t battle.Target, flag battle.EntryFlag, msg string) battle.Entry {
	return battle.Entry{Member: member, SubmittedAt: sc.Now, Target: t, Flag: flag, Message: msg}
}
