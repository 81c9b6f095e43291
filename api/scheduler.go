/*
scheduler.go - Automated remaining-runs reminder

PURPOSE:
  Periodically reminds every clan of the members that still have runs
  left before the clan day ends.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - A clan is due once its local hour reaches RemindHour, until the clan
    day rolls over at 05:00
  - Each group is reminded at most once per clan day
  - Reminders go through the manager, so they land in the notification feed
  - The scheduler clock decides both the window and the clan day reminded

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - RemindHour: Local hour after which reminders are sent (default: 21)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReminderScheduler(registry, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Remind endpoint (manual reminder)
  - manager/summary.go: RemindRemaining
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/manager"
)

// ReminderScheduler sends the daily remaining-runs reminders.
type ReminderScheduler struct {
	Groups        *manager.Registry
	Logger        *zap.Logger
	CheckInterval time.Duration
	RemindHour    int
	Enabled       bool

	// Clock is the time source; tests replace it.
	Clock func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	remindedMu sync.Mutex
	reminded   map[int64]battle.ClanDate
}

// NewReminderScheduler creates a new scheduler.
func NewReminderScheduler(groups *manager.Registry, logger *zap.Logger) *ReminderScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderScheduler{
		Groups:        groups,
		Logger:        logger.Named("scheduler"),
		CheckInterval: 1 * time.Hour,
		RemindHour:    21,
		Enabled:       true,
		Clock:         time.Now,
		stop:          make(chan struct{}),
		reminded:      make(map[int64]battle.ClanDate),
	}
}

// Start begins the scheduler.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.Logger.Info("started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("stopped")
	}
}

func (rs *ReminderScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndRemind()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndRemind()
		case <-rs.stop:
			return
		}
	}
}

// RunNow triggers an immediate check and returns the number of groups
// reminded.
func (rs *ReminderScheduler) RunNow() int {
	return rs.checkAndRemind()
}

func (rs *ReminderScheduler) checkAndRemind() int {
	ctx := context.Background()
	now := rs.Clock()

	clans, err := rs.Groups.Store().ListAllClans(ctx)
	if err != nil {
		rs.Logger.Error("listing clans", zap.Error(err))
		return 0
	}

	reminded := 0
	for _, c := range clans {
		if !rs.due(c, now) {
			continue
		}
		pending, err := rs.Groups.Group(c.GroupID).RemindRemaining(ctx, now)
		if err != nil {
			rs.Logger.Error("reminding clan", zap.Int64("group", c.GroupID), zap.Error(err))
			continue
		}
		rs.markReminded(c, now)
		reminded++
		rs.Logger.Info("reminded clan", zap.Int64("group", c.GroupID), zap.Int("pending", len(pending)))
	}
	return reminded
}

// due reports whether c is in its reminder window and not yet reminded
// this clan day.
func (rs *ReminderScheduler) due(c battle.Clan, now time.Time) bool {
	offset := c.Server.UTCOffset()
	hour := now.In(time.FixedZone("clan", offset*3600)).Hour()
	if hour < rs.RemindHour && hour >= battle.DayStartHour {
		return false
	}

	rs.remindedMu.Lock()
	defer rs.remindedMu.Unlock()
	last, ok := rs.reminded[c.GroupID]
	return !ok || last != battle.ClanDateOf(now, offset)
}

func (rs *ReminderScheduler) markReminded(c battle.Clan, now time.Time) {
	rs.remindedMu.Lock()
	defer rs.remindedMu.Unlock()
	rs.reminded[c.GroupID] = battle.ClanDateOf(now, c.Server.UTCOffset())
}
