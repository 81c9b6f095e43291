package queue

import (
	"context"
	"fmt"

	"github.com/warp/clanbattle/battle"
)

// =============================================================================
// LOCKS
// =============================================================================

// LockBoss locks the current boss for the actor.
func (m *Manager) LockBoss(ctx context.Context, sc Scope, actor battle.Actor) (battle.Entry, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return battle.Entry{}, err
	}
	if lock := firstLock(all, sc.Current); lock != nil {
		return battle.Entry{}, lockedError(lock)
	}
	return m.appendOne(ctx, sc, newEntry(sc, sc.memberOf(actor), sc.Current, battle.EntryLocked, ""))
}

// LockBossAhead locks a future boss. Only the first active subscriber of
// the target may do so.
func (m *Manager) LockBossAhead(ctx context.Context, sc Scope, actor battle.Actor, target battle.Target) (battle.Entry, error) {
	if err := target.Validate(); err != nil {
		return battle.Entry{}, err
	}
	if !target.After(sc.Current) {
		return battle.Entry{}, fmt.Errorf("%w: %s", battle.ErrLateSubscribe, target)
	}
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return battle.Entry{}, err
	}
	slot := onTarget(all, target)
	if lock := firstLock(slot, target); lock != nil {
		return battle.Entry{}, lockedError(lock)
	}
	active := filter(slot, isActive)
	if len(active) == 0 || !actor.Owns(active[0].Member) {
		return battle.Entry{}, fmt.Errorf("%w: %s", battle.ErrSubscribeRequired, target)
	}
	return m.appendOne(ctx, sc, newEntry(sc, sc.memberOf(actor), target, battle.EntryLocked, ""))
}

// UnlockBoss releases the lock on the current boss. The holder or an admin
// may unlock.
func (m *Manager) UnlockBoss(ctx context.Context, sc Scope, actor battle.Actor) (battle.Entry, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return battle.Entry{}, err
	}
	lock := firstLock(all, sc.Current)
	if lock == nil {
		return battle.Entry{}, fmt.Errorf("%w: %s", battle.ErrNotLocked, sc.Current)
	}
	if !actor.CanModify(lock.Member) {
		return battle.Entry{}, fmt.Errorf("%w: %s is locked by user %d", battle.ErrPermissionDenied, sc.Current, lock.Member.UserID)
	}
	lock.Flag = battle.EntryFinished
	if err := m.store.UpdateEntry(ctx, sc.Key, *lock); err != nil {
		return battle.Entry{}, err
	}
	return *lock, nil
}

// AutoUnlockResult reports what AutoUnlock found on the target.
type AutoUnlockResult struct {
	// Unlocked is the lock released on behalf of the actor.
	Unlocked *battle.Entry

	// Conflict is a lock held by someone else; it is left in place.
	Conflict *battle.Entry
}

// AutoUnlock releases the actor's lock on target after they recorded a run
// on it. A lock held by someone else is reported, not released.
func (m *Manager) AutoUnlock(ctx context.Context, sc Scope, actor battle.Actor, target battle.Target) (AutoUnlockResult, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return AutoUnlockResult{}, err
	}
	lock := firstLock(all, target)
	switch {
	case lock == nil:
		return AutoUnlockResult{}, nil
	case !actor.Owns(lock.Member):
		return AutoUnlockResult{Conflict: lock}, nil
	}
	lock.Flag = battle.EntryFinished
	if err := m.store.UpdateEntry(ctx, sc.Key, *lock); err != nil {
		return AutoUnlockResult{}, err
	}
	return AutoUnlockResult{Unlocked: lock}, nil
}

// =============================================================================
// ON TREE
// =============================================================================

// OnTree records that the actor is waiting on the current boss.
func (m *Manager) OnTree(ctx context.Context, sc Scope, actor battle.Actor) (battle.Entry, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return battle.Entry{}, err
	}
	for _, e := range filter(onTarget(all, sc.Current), isOnTree) {
		if actor.Owns(e.Member) {
			return battle.Entry{}, fmt.Errorf("%w: %s", battle.ErrAlreadyOnTree, sc.Current)
		}
	}
	return m.appendOne(ctx, sc, newEntry(sc, sc.memberOf(actor), sc.Current, battle.EntryOnTree, ""))
}

// =============================================================================
// PROGRESS HOOKS
// =============================================================================

// Call lists who to notify when a boss is reached.
type Call struct {
	Target      battle.Target
	Subscribers []battle.Entry
	OffTree     []battle.Entry
}

func (c Call) Empty() bool { return len(c.Subscribers) == 0 && len(c.OffTree) == 0 }

// CallSubscribers collects the active subscribers of a newly reached boss
// and the on-tree claims left behind on earlier bosses. On-tree claims are
// finished by the call.
func (m *Manager) CallSubscribers(ctx context.Context, sc Scope, target battle.Target) (Call, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return Call{}, err
	}
	call := Call{
		Target:      target,
		Subscribers: filter(onTarget(all, target), isActive),
		OffTree: filter(all, func(e battle.Entry) bool {
			return isOnTree(e) && !e.Target.After(target)
		}),
	}
	if len(call.OffTree) == 0 {
		return call, nil
	}

	for i := range call.OffTree {
		call.OffTree[i].Flag = battle.EntryFinished
	}
	if err := m.store.UpdateEntries(ctx, sc.Key, call.OffTree); err != nil {
		return Call{}, err
	}
	return call, nil
}

// AutoFinish finishes the member's first active entry on target once they
// recorded a run on it. It returns nil when there was none.
func (m *Manager) AutoFinish(ctx context.Context, sc Scope, member battle.MemberKey, target battle.Target) (*battle.Entry, error) {
	mine, err := m.store.ListEntriesByMember(ctx, sc.Key, member)
	if err != nil {
		return nil, err
	}
	active := filter(onTarget(mine, target), isActive)
	if len(active) == 0 {
		return nil, nil
	}
	e := active[0]
	e.Flag = battle.EntryFinished
	if err := m.store.UpdateEntry(ctx, sc.Key, e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *Manager) appendOne(ctx context.Context, sc Scope, e battle.Entry) (battle.Entry, error) {
	id, err := m.store.AppendEntry(ctx, sc.Key, e)
	if err != nil {
		return battle.Entry{}, err
	}
	e.ID = id
	return e, nil
}
