/*
manager.go - Per-group façade over the clan battle ledger

PURPOSE:
  A Manager runs every command of one chat group: clan and member
  bookkeeping, damage submissions with correction, the subscription
  queue, and ledger summaries. Commands of one group are processed one at
  a time; different groups never share a lock.

CONTROL FLOW OF A SUBMISSION:
  progress before -> correction -> append -> progress after
    -> call subscribers (if the boss changed)
    -> auto unlock (boss before)
    -> auto finish (boss before)

STORAGE FAULTS:
  Every store error that is not a domain error is wrapped in a
  StorageError, logged once here with the operation, group and partition,
  counted, and returned. Nothing is retried.

SEE ALSO:
  - runs.go: SubmitRun and record maintenance
  - subscriptions.go: Queue commands
  - summary.go: Damage, score and remaining-run reports
  - clans.go: Clan and member commands
*/
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/metrics"
	"github.com/warp/clanbattle/progress"
	"github.com/warp/clanbattle/queue"
)

// DefaultBatchLimit caps the members imported by one BatchAddMembers call.
const DefaultBatchLimit = 50

// Dependencies are shared by the managers of every group.
type Dependencies struct {
	Store    battle.Store
	Tables   progress.Tables
	Names    NameResolver
	Notifier Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	// Clock defaults to time.Now.
	Clock func() time.Time

	SubscribeLimit int
	BatchLimit     int
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Tables == nil {
		d.Tables = progress.DefaultTables()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.SubscribeLimit < 1 {
		d.SubscribeLimit = queue.DefaultLimit
	}
	if d.BatchLimit < 1 {
		d.BatchLimit = DefaultBatchLimit
	}
	return d
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry hands out one Manager per group so that commands of a group
// share a single lock.
type Registry struct {
	deps   Dependencies
	mu     sync.Mutex
	groups map[int64]*Manager
}

func NewRegistry(deps Dependencies) *Registry {
	return &Registry{deps: deps.withDefaults(), groups: make(map[int64]*Manager)}
}

// Group returns the manager of groupID, creating it on first use.
func (r *Registry) Group(groupID int64) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.groups[groupID]
	if !ok {
		m = New(groupID, r.deps)
		r.groups[groupID] = m
	}
	return m
}

// Store exposes the shared store, for jobs that span groups.
func (r *Registry) Store() battle.Store { return r.deps.Store }

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	groupID int64
	deps    Dependencies
	log     *zap.Logger

	mu     sync.Mutex
	engine *progress.Engine
	queue  *queue.Manager
}

// New creates the manager of one group. Callers that serve several groups
// should go through a Registry.
func New(groupID int64, deps Dependencies) *Manager {
	deps = deps.withDefaults()
	return &Manager{
		groupID: groupID,
		deps:    deps,
		log:     deps.Logger.With(zap.Int64("group", groupID)),
		engine:  progress.NewEngine(deps.Store, deps.Tables),
		queue:   queue.New(deps.Store, deps.SubscribeLimit),
	}
}

func (m *Manager) GroupID() int64 { return m.groupID }

func (m *Manager) now() time.Time { return m.deps.Clock() }

// clan loads the group's clan. Every group runs a single clan.
func (m *Manager) clan(ctx context.Context) (battle.Clan, error) {
	c, err := m.deps.Store.GetClan(ctx, m.groupID, battle.DefaultClanID)
	if err != nil {
		return battle.Clan{}, m.storeErr("get clan", nil, err)
	}
	return c, nil
}

func (m *Manager) partition(c battle.Clan, at time.Time) battle.PartitionKey {
	return battle.NewPartitionKey(c.GroupID, c.ClanID, at, c.Server.UTCOffset())
}

// session is the clan, its current partition and progress at one instant.
type session struct {
	clan  battle.Clan
	key   battle.PartitionKey
	now   time.Time
	state progress.State
}

func (s session) scope() queue.Scope {
	return queue.Scope{
		Key:       s.key,
		Current:   s.state.Target,
		UTCOffset: s.clan.Server.UTCOffset(),
		Now:       s.now,
	}
}

func (m *Manager) open(ctx context.Context) (session, error) { return m.openAt(ctx, 0) }

// storeErr passes domain errors through and turns everything else into a
// logged, counted StorageError.
func (m *Manager) storeErr(op string, key *battle.PartitionKey, err error) error {
	if err == nil {
		return nil
	}
	if battle.IsClientError(err) && !errors.Is(err, battle.ErrStorage) {
		return err
	}
	err = battle.NewStorageError(op, err)

	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	if key != nil {
		fields = append(fields, zap.Stringer("partition", key))
	}
	m.log.Error("storage failure", fields...)
	m.deps.Metrics.StorageFailure(op)
	return err
}

func (m *Manager) notify(ctx context.Context, n Notification) {
	n.GroupID = m.groupID
	if n.At.IsZero() {
		n.At = m.now()
	}
	m.deps.Notifier.Notify(ctx, n)
}

func requireAdmin(actor battle.Actor, what string) error {
	if !actor.Admin {
		return fmt.Errorf("%w: %s requires an admin", battle.ErrPermissionDenied, what)
	}
	return nil
}
