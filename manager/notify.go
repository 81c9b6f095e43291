package manager

import (
	"context"
	"sync"
	"time"

	"github.com/warp/clanbattle/battle"
)

// =============================================================================
// NOTIFICATIONS - Typed group announcements
// =============================================================================

type NotificationKind string

const (
	// KindCallSubscribers: a boss was reached and its subscribers should attack.
	KindCallSubscribers NotificationKind = "call_subscribers"

	// KindOffTree: members waiting on the killed boss can leave the tree.
	KindOffTree NotificationKind = "off_tree"

	// KindAutoUnlock: the submitter's lock was released after their run.
	KindAutoUnlock NotificationKind = "auto_unlock"

	// KindLockConflict: someone recorded a run on a boss another member locked.
	KindLockConflict NotificationKind = "lock_conflict"

	// KindAutoFinish: the submitter's subscription was fulfilled by their run.
	KindAutoFinish NotificationKind = "auto_finish"

	// KindRemainReminder: daily reminder of members with runs left.
	KindRemainReminder NotificationKind = "remain_reminder"
)

// Notification is an announcement for a group. Rendering it into text is
// left to the consumer.
type Notification struct {
	Kind    NotificationKind
	GroupID int64
	At      time.Time
	Target  battle.Target
	Entries []battle.Entry
	Remain  []RemainSummary
}

// Notifier delivers notifications. Notify must not block on slow consumers.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NameResolver looks up a display name for a user of a group.
type NameResolver interface {
	ResolveName(ctx context.Context, groupID, userID int64) (string, error)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) {}

// =============================================================================
// FEED - In-memory notifier backing the HTTP notification feed
// =============================================================================

// Feed keeps the latest notifications of every group.
type Feed struct {
	mu       sync.RWMutex
	capacity int
	byGroup  map[int64][]Notification
}

// NewFeed creates a feed that keeps up to capacity notifications per group.
func NewFeed(capacity int) *Feed {
	if capacity < 1 {
		capacity = 100
	}
	return &Feed{capacity: capacity, byGroup: make(map[int64][]Notification)}
}

func (f *Feed) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list := append(f.byGroup[n.GroupID], n)
	if len(list) > f.capacity {
		list = list[len(list)-f.capacity:]
	}
	f.byGroup[n.GroupID] = list
}

// List returns the group's notifications, oldest first.
func (f *Feed) List(groupID int64) []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Notification(nil), f.byGroup[groupID]...)
}
