package manager

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/queue"
)

// =============================================================================
// QUEUE COMMANDS - Delegated to queue.Manager with the current progress
// =============================================================================

// upcoming fills an omitted round: the current round when the boss is still
// ahead in it, the next round otherwise.
func upcoming(current battle.Target, round, boss int) battle.Target {
	t := battle.Target{Round: round, Boss: boss}
	if round != 0 {
		return t
	}
	t.Round = current.Round
	if !t.After(current) {
		t.Round++
	}
	return t
}

// withScope opens a session under the group lock and hands its scope to fn.
func (m *Manager) withScope(ctx context.Context, op string, fn func(queue.Scope) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.open(ctx)
	if err != nil {
		return err
	}
	sc := s.scope()
	return m.storeErr(op, &sc.Key, fn(sc))
}

// Subscribe queues the actor for a boss. A zero round means the next
// appearance of boss.
func (m *Manager) Subscribe(ctx context.Context, actor battle.Actor, round, boss int, msg string) (queue.SubscribeResult, error) {
	var res queue.SubscribeResult
	err := m.withScope(ctx, "subscribe", func(sc queue.Scope) error {
		if err := m.requireMember(ctx, actor.UserID); err != nil {
			return err
		}
		var err error
		res, err = m.queue.Subscribe(ctx, sc, actor, upcoming(sc.Current, round, boss), msg)
		return err
	})
	if err != nil {
		return queue.SubscribeResult{}, err
	}
	if res.Accepted {
		m.deps.Metrics.QueueTransition(res.Entry.Flag.String())
	}
	return res, nil
}

// SubscribeWhole queues the actor for a full run and locks the boss for them.
func (m *Manager) SubscribeWhole(ctx context.Context, actor battle.Actor, round, boss int, msg string) (queue.SubscribeResult, error) {
	var res queue.SubscribeResult
	err := m.withScope(ctx, "subscribe whole", func(sc queue.Scope) error {
		if err := m.requireMember(ctx, actor.UserID); err != nil {
			return err
		}
		var err error
		res, err = m.queue.SubscribeWhole(ctx, sc, actor, upcoming(sc.Current, round, boss), msg)
		return err
	})
	if err != nil {
		return queue.SubscribeResult{}, err
	}
	if res.Accepted {
		m.deps.Metrics.QueueTransition(res.Entry.Flag.String())
		m.deps.Metrics.QueueTransition(battle.EntryLocked.String())
	}
	return res, nil
}

func (m *Manager) Unsubscribe(ctx context.Context, actor battle.Actor, id battle.EntryID) (battle.Entry, error) {
	var e battle.Entry
	err := m.withScope(ctx, "unsubscribe", func(sc queue.Scope) error {
		var err error
		e, err = m.queue.Unsubscribe(ctx, sc, actor, id)
		return err
	})
	if err != nil {
		return battle.Entry{}, err
	}
	m.deps.Metrics.QueueTransition(battle.EntryCancel.String())
	return e, nil
}

// SwapRound moves a subscription to a later round, trading places with
// the entries already there.
func (m *Manager) SwapRound(ctx context.Context, actor battle.Actor, id battle.EntryID, newRound int) ([]battle.Entry, error) {
	var moved []battle.Entry
	err := m.withScope(ctx, "swap round", func(sc queue.Scope) error {
		var err error
		moved, err = m.queue.SwapRound(ctx, sc, actor, id, newRound)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug("subscriptions swapped", zap.Int64("entry", int64(id)), zap.Int("round", newRound), zap.Int("moved", len(moved)))
	return moved, nil
}

// ClearTarget cancels every active entry of a boss.
func (m *Manager) ClearTarget(ctx context.Context, actor battle.Actor, round, boss int) ([]battle.Entry, error) {
	var cleared []battle.Entry
	err := m.withScope(ctx, "clear subscriptions", func(sc queue.Scope) error {
		var err error
		cleared, err = m.queue.ClearTarget(ctx, sc, actor, upcoming(sc.Current, round, boss))
		return err
	})
	if err != nil {
		return nil, err
	}
	for range cleared {
		m.deps.Metrics.QueueTransition(battle.EntryCancel.String())
	}
	return cleared, nil
}

// =============================================================================
// LOCKS & ON TREE
// =============================================================================

func (m *Manager) LockBoss(ctx context.Context, actor battle.Actor) (battle.Entry, error) {
	return m.lockOp(ctx, "lock boss", func(sc queue.Scope) (battle.Entry, error) {
		return m.queue.LockBoss(ctx, sc, actor)
	})
}

func (m *Manager) LockBossAhead(ctx context.Context, actor battle.Actor, round, boss int) (battle.Entry, error) {
	return m.lockOp(ctx, "lock boss ahead", func(sc queue.Scope) (battle.Entry, error) {
		return m.queue.LockBossAhead(ctx, sc, actor, upcoming(sc.Current, round, boss))
	})
}

func (m *Manager) UnlockBoss(ctx context.Context, actor battle.Actor) (battle.Entry, error) {
	return m.lockOp(ctx, "unlock boss", func(sc queue.Scope) (battle.Entry, error) {
		return m.queue.UnlockBoss(ctx, sc, actor)
	})
}

func (m *Manager) OnTree(ctx context.Context, actor battle.Actor) (battle.Entry, error) {
	return m.lockOp(ctx, "on tree", func(sc queue.Scope) (battle.Entry, error) {
		if err := m.requireMember(ctx, actor.UserID); err != nil {
			return battle.Entry{}, err
		}
		return m.queue.OnTree(ctx, sc, actor)
	})
}

func (m *Manager) lockOp(ctx context.Context, op string, fn func(queue.Scope) (battle.Entry, error)) (battle.Entry, error) {
	var e battle.Entry
	err := m.withScope(ctx, op, func(sc queue.Scope) error {
		var err error
		e, err = fn(sc)
		return err
	})
	if err != nil {
		return battle.Entry{}, err
	}
	m.deps.Metrics.QueueTransition(e.Flag.String())
	return e, nil
}

// =============================================================================
// LISTINGS
// =============================================================================

func (m *Manager) list(ctx context.Context, op string, fn func(queue.Scope) ([]battle.Entry, error)) ([]battle.Entry, error) {
	var es []battle.Entry
	err := m.withScope(ctx, op, func(sc queue.Scope) error {
		var err error
		es, err = fn(sc)
		return err
	})
	return es, err
}

// ListSubscriptions returns today's active subscriptions.
func (m *Manager) ListSubscriptions(ctx context.Context) ([]battle.Entry, error) {
	return m.list(ctx, "list subscriptions", func(sc queue.Scope) ([]battle.Entry, error) {
		return m.queue.ListActive(ctx, sc)
	})
}

// ListUserSubscriptions returns today's active subscriptions of one member.
func (m *Manager) ListUserSubscriptions(ctx context.Context, userID int64) ([]battle.Entry, error) {
	return m.list(ctx, "list member subscriptions", func(sc queue.Scope) ([]battle.Entry, error) {
		return m.queue.ListByUser(ctx, sc, m.memberKey(userID))
	})
}

func (m *Manager) ListLocked(ctx context.Context) ([]battle.Entry, error) {
	return m.list(ctx, "list locks", func(sc queue.Scope) ([]battle.Entry, error) {
		return m.queue.ListLocked(ctx, sc)
	})
}

func (m *Manager) ListOnTree(ctx context.Context) ([]battle.Entry, error) {
	return m.list(ctx, "list on tree", func(sc queue.Scope) ([]battle.Entry, error) {
		return m.queue.ListOnTree(ctx, sc)
	})
}

// ListEntries returns every entry of the month, whatever its state.
func (m *Manager) ListEntries(ctx context.Context) ([]battle.Entry, error) {
	return m.list(ctx, "list entries", func(sc queue.Scope) ([]battle.Entry, error) {
		return m.queue.ListAll(ctx, sc)
	})
}

// SubscribeLimit is the cap of active entries per boss.
func (m *Manager) SubscribeLimit() int { return m.queue.Limit() }
