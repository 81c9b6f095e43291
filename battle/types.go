/*
Package battle provides the core clan battle domain model.

PURPOSE:
  Domain types shared by every other package: server regions, clans,
  members, run records, subscription entries and the targets (round, boss)
  they point at. Also hosts the clan calendar, the partition key, the
  store interfaces and the error taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Server:      Region code selecting UTC offset and boss tier table
  - Target:      A (round, boss) pair; the unit of progress
  - RunRecord:   A damage submission, owned by one ledger partition
  - Entry:       A subscription/lock entry, flag-transitioned, never deleted

DESIGN PRINCIPLES:
  1. Derivation: Progress is never stored, it is folded from run records
  2. Soft state: Subscription entries only change flag, history is kept
  3. Type Safety: Typed IDs keep run and entry identifiers apart

SEE ALSO:
  - calendar.go: Clan day / clan month bucketing
  - partition.go: Partition key derivation
  - store.go: Persistence interfaces
*/
package battle

import (
	"fmt"
	"strings"
	"time"
)

// DefaultClanID is the only clan id used per group.
const DefaultClanID int64 = 1

// BossesPerRound is the number of bosses in a round.
const BossesPerRound = 5

// =============================================================================
// SERVER - Region code
// =============================================================================

type Server int

const (
	ServerJP Server = iota
	ServerTW
	ServerCN
)

// UTCOffset returns the region's local offset from UTC in hours.
func (s Server) UTCOffset() int {
	if s == ServerJP {
		return 9
	}
	return 8
}

func (s Server) Valid() bool { return s >= ServerJP && s <= ServerCN }

func (s Server) String() string {
	switch s {
	case ServerJP:
		return "JP"
	case ServerTW:
		return "TW"
	case ServerCN:
		return "CN"
	default:
		return "UNKNOWN"
	}
}

// ParseServer accepts region names case-insensitively ("jp", "TW", "cn").
func ParseServer(s string) (Server, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "JP":
		return ServerJP, nil
	case "TW":
		return ServerTW, nil
	case "CN":
		return ServerCN, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidServer, s)
}

// =============================================================================
// TARGET - (round, boss)
// =============================================================================

// Target identifies one boss appearance. Rounds start at 1, bosses are 1..5.
type Target struct {
	Round int
	Boss  int
}

// Ordinal maps a target onto a single increasing integer for comparisons.
func (t Target) Ordinal() int { return t.Round*BossesPerRound + t.Boss }

func (t Target) Before(o Target) bool { return t.Ordinal() < o.Ordinal() }
func (t Target) After(o Target) bool  { return t.Ordinal() > o.Ordinal() }

// Next returns the following boss, wrapping to boss 1 of the next round.
func (t Target) Next() Target {
	if t.Boss < BossesPerRound {
		return Target{Round: t.Round, Boss: t.Boss + 1}
	}
	return Target{Round: t.Round + 1, Boss: 1}
}

func (t Target) Validate() error {
	if t.Round < 1 {
		return fmt.Errorf("%w: round %d", ErrInvalidRound, t.Round)
	}
	if t.Boss < 1 || t.Boss > BossesPerRound {
		return fmt.Errorf("%w: boss %d", ErrInvalidBossCode, t.Boss)
	}
	return nil
}

func (t Target) String() string { return fmt.Sprintf("R%d-B%d", t.Round, t.Boss) }

// =============================================================================
// CLAN & MEMBER
// =============================================================================

type Clan struct {
	GroupID int64
	ClanID  int64
	Name    string
	Server  Server
}

// MemberKey identifies a member. AltID is the group the member registered from,
// so the same user can be a member of several groups.
type MemberKey struct {
	UserID int64
	AltID  int64
}

type Member struct {
	MemberKey
	Name    string
	GroupID int64
	ClanID  int64
}

// Actor is the user issuing a command.
type Actor struct {
	UserID int64
	Admin  bool
}

// Owns reports whether m belongs to the actor. Ownership is decided by user
// id alone, whatever group the member registered from.
func (a Actor) Owns(m MemberKey) bool { return a.UserID == m.UserID }

// CanModify reports whether the actor may change something owned by m.
func (a Actor) CanModify(m MemberKey) bool { return a.Admin || a.Owns(m) }

// =============================================================================
// RUN RECORD
// =============================================================================

type RunID int64

type RecordFlag int

const (
	FlagNormal RecordFlag = iota
	FlagTail
	FlagLeftover
	FlagLost
)

func (f RecordFlag) String() string {
	switch f {
	case FlagNormal:
		return "normal"
	case FlagTail:
		return "tail"
	case FlagLeftover:
		return "leftover"
	case FlagLost:
		return "lost"
	default:
		return "unknown"
	}
}

func ParseRecordFlag(s string) (RecordFlag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return FlagNormal, nil
	case "tail":
		return FlagTail, nil
	case "leftover":
		return FlagLeftover, nil
	case "lost":
		return FlagLost, nil
	}
	return 0, fmt.Errorf("%w: record flag %q", ErrInvalidArgument, s)
}

// RunRecord is one damage submission. Records are only appended, corrected
// in place by explicit commands, or deleted.
type RunRecord struct {
	ID          RunID
	Member      MemberKey
	SubmittedAt time.Time
	Target      Target
	Damage      int64
	Flag        RecordFlag
}

// =============================================================================
// SUBSCRIPTION ENTRY
// =============================================================================

type EntryID int64

type EntryFlag int

const (
	EntryNormal EntryFlag = iota
	EntryWhole
	EntryCancel
	EntryFinished
	EntryOnTree
	EntryLocked
)

func (f EntryFlag) String() string {
	switch f {
	case EntryNormal:
		return "normal"
	case EntryWhole:
		return "whole"
	case EntryCancel:
		return "cancel"
	case EntryFinished:
		return "finished"
	case EntryOnTree:
		return "ontree"
	case EntryLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Active reports whether the flag counts as a queued subscription.
func (f EntryFlag) Active() bool { return f == EntryNormal || f == EntryWhole }

// Terminal reports whether the entry can no longer change.
func (f EntryFlag) Terminal() bool { return f == EntryCancel || f == EntryFinished }

// Entry is a subscription, lock or on-tree claim on a target.
type Entry struct {
	ID          EntryID
	Member      MemberKey
	SubmittedAt time.Time
	Target      Target
	Flag        EntryFlag
	Message     string
}
