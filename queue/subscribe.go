package queue

import (
	"context"
	"fmt"

	"github.com/warp/clanbattle/battle"
)

// SubscribeResult reports what a subscription request stored.
type SubscribeResult struct {
	// Accepted is false when the target was full; nothing was stored.
	Accepted bool
	Entry    battle.Entry

	// Lock is the automatic lock of a whole-run subscription.
	Lock *battle.Entry
}

// =============================================================================
// SUBSCRIBE
// =============================================================================

// checkSubscribable validates a new NORMAL or WHOLE entry and returns the
// active entries already on the target.
func checkSubscribable(all []battle.Entry, sc Scope, member battle.MemberKey, target battle.Target) ([]battle.Entry, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if !target.After(sc.Current) {
		return nil, fmt.Errorf("%w: %s", battle.ErrLateSubscribe, target)
	}

	slot := onTarget(all, target)
	if lock := firstLock(slot, target); lock != nil {
		return nil, lockedError(lock)
	}

	active := filter(slot, isActive)
	for _, e := range active {
		if e.Member == member {
			return nil, fmt.Errorf("%w: %s", battle.ErrDuplicateSubscribe, target)
		}
	}
	return active, nil
}

// Subscribe queues the actor for a future boss.
func (m *Manager) Subscribe(ctx context.Context, sc Scope, actor battle.Actor, target battle.Target, msg string) (SubscribeResult, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return SubscribeResult{}, err
	}
	member := sc.memberOf(actor)
	active, err := checkSubscribable(all, sc, member, target)
	if err != nil {
		return SubscribeResult{}, err
	}
	if len(active) >= m.limit {
		return SubscribeResult{Accepted: false}, nil
	}

	e := newEntry(sc, member, target, battle.EntryNormal, msg)
	if e.ID, err = m.store.AppendEntry(ctx, sc.Key, e); err != nil {
		return SubscribeResult{}, err
	}
	return SubscribeResult{Accepted: true, Entry: e}, nil
}

// SubscribeWhole queues the actor for a full-run attempt and locks the
// target for them. The target must have no active entries.
func (m *Manager) SubscribeWhole(ctx context.Context, sc Scope, actor battle.Actor, target battle.Target, msg string) (SubscribeResult, error) {
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return SubscribeResult{}, err
	}
	member := sc.memberOf(actor)
	active, err := checkSubscribable(all, sc, member, target)
	if err != nil {
		return SubscribeResult{}, err
	}
	if len(active) > 0 {
		return SubscribeResult{Accepted: false}, nil
	}

	whole := newEntry(sc, member, target, battle.EntryWhole, msg)
	lock := newEntry(sc, member, target, battle.EntryLocked, msg)
	ids, err := m.store.AppendEntries(ctx, sc.Key, []battle.Entry{whole, lock})
	if err != nil {
		return SubscribeResult{}, err
	}
	whole.ID, lock.ID = ids[0], ids[1]
	return SubscribeResult{Accepted: true, Entry: whole, Lock: &lock}, nil
}

// =============================================================================
// UNSUBSCRIBE
// =============================================================================

// Unsubscribe cancels an entry. Cancelling a WHOLE entry also cancels the
// owner's lock on the same target, if it is still held.
func (m *Manager) Unsubscribe(ctx context.Context, sc Scope, actor battle.Actor, id battle.EntryID) (battle.Entry, error) {
	e, err := m.store.GetEntry(ctx, sc.Key, id)
	if err != nil {
		return battle.Entry{}, err
	}
	if !actor.CanModify(e.Member) {
		return battle.Entry{}, fmt.Errorf("%w: entry %d belongs to user %d", battle.ErrPermissionDenied, id, e.Member.UserID)
	}
	if e.Flag.Terminal() {
		return battle.Entry{}, fmt.Errorf("%w: entry %d is %s", battle.ErrEntryClosed, id, e.Flag)
	}

	updates := []battle.Entry{e}
	if e.Flag == battle.EntryWhole {
		all, err := m.store.ListEntries(ctx, sc.Key)
		if err != nil {
			return battle.Entry{}, err
		}
		if lock := firstLock(all, e.Target); lock != nil && lock.Member == e.Member {
			lock.Flag = battle.EntryCancel
			updates = append(updates, *lock)
		}
	}
	updates[0].Flag = battle.EntryCancel

	if err := m.store.UpdateEntries(ctx, sc.Key, updates); err != nil {
		return battle.Entry{}, err
	}
	return updates[0], nil
}

// =============================================================================
// SWAP
// =============================================================================

// SwapRound exchanges the (round, boss) slot of entry id with the slot of
// the same boss in newRound. Every active and locked entry of either slot
// moves, so applying the same swap again restores the original layout.
// Subscriptions only move forward, and only slots still ahead of progress
// can be swapped.
func (m *Manager) SwapRound(ctx context.Context, sc Scope, actor battle.Actor, id battle.EntryID, newRound int) ([]battle.Entry, error) {
	e, err := m.store.GetEntry(ctx, sc.Key, id)
	if err != nil {
		return nil, err
	}
	if !isSlotted(e) {
		return nil, fmt.Errorf("%w: entry %d is %s", battle.ErrEntryClosed, id, e.Flag)
	}
	if newRound <= e.Target.Round {
		return nil, fmt.Errorf("%w: round %d to %d", battle.ErrSwapBackward, e.Target.Round, newRound)
	}
	if !e.Target.After(sc.Current) {
		return nil, fmt.Errorf("%w: %s is not after progress %s", battle.ErrLateSubscribe, e.Target, sc.Current)
	}
	if !actor.CanModify(e.Member) {
		return nil, fmt.Errorf("%w: entry %d belongs to user %d", battle.ErrPermissionDenied, id, e.Member.UserID)
	}

	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return nil, err
	}
	from := e.Target
	to := battle.Target{Round: newRound, Boss: from.Boss}

	var moved []battle.Entry
	for _, x := range filter(all, isSlotted) {
		switch x.Target {
		case from:
			x.Target = to
		case to:
			x.Target = from
		default:
			continue
		}
		moved = append(moved, x)
	}

	if err := m.store.UpdateEntries(ctx, sc.Key, moved); err != nil {
		return nil, err
	}
	return moved, nil
}

// =============================================================================
// CLEAR
// =============================================================================

// ClearTarget cancels every active entry on target. Admin only.
func (m *Manager) ClearTarget(ctx context.Context, sc Scope, actor battle.Actor, target battle.Target) ([]battle.Entry, error) {
	if !actor.Admin {
		return nil, fmt.Errorf("%w: clearing a queue requires admin", battle.ErrPermissionDenied)
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	all, err := m.store.ListEntries(ctx, sc.Key)
	if err != nil {
		return nil, err
	}
	active := filter(onTarget(all, target), isActive)
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: queue of %s is empty", battle.ErrEntryNotFound, target)
	}
	for i := range active {
		active[i].Flag = battle.EntryCancel
	}
	if err := m.store.UpdateEntries(ctx, sc.Key, active); err != nil {
		return nil, err
	}
	return active, nil
}
