/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TIMES:
  Timestamps are RFC 3339 strings in UTC.

VALIDATION:
  Validation is done by the manager, not in DTOs. DTOs are pure data
  carriers; handlers only parse.

SEE ALSO:
  - handlers.go: Uses these types
  - manager/: Domain operations behind every endpoint
*/
package api

import (
	"time"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/manager"
	"github.com/warp/clanbattle/progress"
	"github.com/warp/clanbattle/queue"
)

// =============================================================================
// CLANS & MEMBERS
// =============================================================================

type ClanDTO struct {
	GroupID int64  `json:"group_id"`
	ClanID  int64  `json:"clan_id"`
	Name    string `json:"name"`
	Server  string `json:"server"`
}

// SaveClanRequest creates or updates the group's clan.
type SaveClanRequest struct {
	Name   string `json:"name"`
	Server string `json:"server"`
}

type MemberDTO struct {
	UserID int64  `json:"user_id"`
	AltID  int64  `json:"alt_id"`
	Name   string `json:"name"`
}

// AddMemberRequest adds a member. A zero user_id means the caller; an empty
// name is looked up.
type AddMemberRequest struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type BatchMembersRequest struct {
	Members []AddMemberRequest `json:"members"`
}

type BatchResultDTO struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// =============================================================================
// RUNS & PROGRESS
// =============================================================================

type RunDTO struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	SubmittedAt string `json:"submitted_at"`
	Round       int    `json:"round"`
	Boss        int    `json:"boss"`
	Damage      int64  `json:"damage"`
	Flag        string `json:"flag"`
}

// SubmitRunRequest reports a run. Round and boss default to the current
// boss; flag defaults to "normal".
type SubmitRunRequest struct {
	UserID    int64  `json:"user_id"`
	Round     int    `json:"round"`
	Boss      int    `json:"boss"`
	Damage    int64  `json:"damage"`
	Flag      string `json:"flag"`
	DayOffset int    `json:"day_offset"`
}

// ModifyRunRequest rewrites a stored record.
type ModifyRunRequest struct {
	Round  int    `json:"round"`
	Boss   int    `json:"boss"`
	Damage int64  `json:"damage"`
	Flag   string `json:"flag"`
}

// RawRunRequest appends a record without correction.
type RawRunRequest struct {
	UserID      int64  `json:"user_id"`
	SubmittedAt string `json:"submitted_at"`
	Round       int    `json:"round"`
	Boss        int    `json:"boss"`
	Damage      int64  `json:"damage"`
	Flag        string `json:"flag"`
}

type StateDTO struct {
	Round     int   `json:"round"`
	Boss      int   `json:"boss"`
	Remaining int64 `json:"remaining_hp"`
	TotalHP   int64 `json:"total_hp"`
}

type ProgressDTO struct {
	StateDTO
	ClanName  string    `json:"clan_name"`
	Server    string    `json:"server"`
	Tier      int       `json:"tier"`
	ScoreRate string    `json:"score_rate"`
	Partition string    `json:"partition"`
	LockedBy  *EntryDTO `json:"locked_by,omitempty"`
}

type RunReportDTO struct {
	Record       RunDTO      `json:"record"`
	MemberName   string      `json:"member_name"`
	Notes        []string    `json:"notes"`
	Before       StateDTO    `json:"before"`
	After        ProgressDTO `json:"after"`
	Called       []EntryDTO  `json:"called,omitempty"`
	OffTree      []EntryDTO  `json:"off_tree,omitempty"`
	Unlocked     *EntryDTO   `json:"unlocked,omitempty"`
	LockConflict *EntryDTO   `json:"lock_conflict,omitempty"`
	Finished     *EntryDTO   `json:"finished,omitempty"`
}

// ChangeProgressRequest fast-forwards the clan. A missing hp keeps the
// target boss at full HP.
type ChangeProgressRequest struct {
	Round int    `json:"round"`
	Boss  int    `json:"boss"`
	HP    *int64 `json:"hp"`
}

type BossInfoDTO struct {
	Round     int    `json:"round"`
	Boss      int    `json:"boss"`
	TotalHP   int64  `json:"total_hp"`
	ScoreRate string `json:"score_rate"`
	Tier      int    `json:"tier"`
}

// =============================================================================
// QUEUE
// =============================================================================

type EntryDTO struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	SubmittedAt string `json:"submitted_at"`
	Round       int    `json:"round"`
	Boss        int    `json:"boss"`
	Flag        string `json:"flag"`
	Message     string `json:"message,omitempty"`
}

// SubscribeRequest queues the caller. A zero round means the next
// appearance of the boss.
type SubscribeRequest struct {
	Round   int    `json:"round"`
	Boss    int    `json:"boss"`
	Message string `json:"message"`
	Whole   bool   `json:"whole"`
}

type SubscribeResultDTO struct {
	Accepted bool      `json:"accepted"`
	Limit    int       `json:"limit"`
	Entry    *EntryDTO `json:"entry,omitempty"`
	Lock     *EntryDTO `json:"lock,omitempty"`
}

type SwapRequest struct {
	Round int `json:"round"`
}

type TargetRequest struct {
	Round int `json:"round"`
	Boss  int `json:"boss"`
}

// =============================================================================
// SUMMARIES
// =============================================================================

type DamageSummaryDTO struct {
	UserID int64                        `json:"user_id"`
	Name   string                       `json:"name"`
	Total  int64                        `json:"total"`
	ByBoss [battle.BossesPerRound]int64 `json:"by_boss"`
}

type ScoreSummaryDTO struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Score  int64  `json:"score"`
}

type RemainDTO struct {
	UserID       int64  `json:"user_id"`
	Name         string `json:"name"`
	Normal       int    `json:"normal"`
	Tail         int    `json:"tail"`
	Leftover     int    `json:"leftover"`
	Lost         int    `json:"lost"`
	Remain       int    `json:"remain"`
	OwedLeftover int    `json:"owed_leftover"`
}

type UnionRunRequest struct {
	HP int64 `json:"hp"`
	A  int64 `json:"a"`
	B  int64 `json:"b"`
}

type UnionPlanDTO struct {
	Shortfall int64  `json:"shortfall"`
	Opener    int    `json:"opener"`
	Finisher  int    `json:"finisher"`
	Seconds   string `json:"seconds"`
}

type NotificationDTO struct {
	Kind    string      `json:"kind"`
	At      string      `json:"at"`
	Round   int         `json:"round,omitempty"`
	Boss    int         `json:"boss,omitempty"`
	Entries []EntryDTO  `json:"entries,omitempty"`
	Remain  []RemainDTO `json:"remain,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Usage   string `json:"usage,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func toClanDTO(c battle.Clan) ClanDTO {
	return ClanDTO{GroupID: c.GroupID, ClanID: c.ClanID, Name: c.Name, Server: c.Server.String()}
}

func toMemberDTO(m battle.Member) MemberDTO {
	return MemberDTO{UserID: m.UserID, AltID: m.AltID, Name: m.Name}
}

func toRunDTO(r battle.RunRecord) RunDTO {
	return RunDTO{
		ID:          int64(r.ID),
		UserID:      r.Member.UserID,
		SubmittedAt: formatTime(r.SubmittedAt),
		Round:       r.Target.Round,
		Boss:        r.Target.Boss,
		Damage:      r.Damage,
		Flag:        r.Flag.String(),
	}
}

func toRunDTOs(runs []battle.RunRecord) []RunDTO {
	out := make([]RunDTO, len(runs))
	for i, r := range runs {
		out[i] = toRunDTO(r)
	}
	return out
}

func toEntryDTO(e battle.Entry) EntryDTO {
	return EntryDTO{
		ID:          int64(e.ID),
		UserID:      e.Member.UserID,
		SubmittedAt: formatTime(e.SubmittedAt),
		Round:       e.Target.Round,
		Boss:        e.Target.Boss,
		Flag:        e.Flag.String(),
		Message:     e.Message,
	}
}

func toEntryPtr(e *battle.Entry) *EntryDTO {
	if e == nil {
		return nil
	}
	dto := toEntryDTO(*e)
	return &dto
}

func toEntryDTOs(es []battle.Entry) []EntryDTO {
	out := make([]EntryDTO, len(es))
	for i, e := range es {
		out[i] = toEntryDTO(e)
	}
	return out
}

func toStateDTO(s progress.State) StateDTO {
	return StateDTO{Round: s.Target.Round, Boss: s.Target.Boss, Remaining: s.Remaining, TotalHP: s.TotalHP}
}

func toProgressDTO(v manager.ProgressView) ProgressDTO {
	return ProgressDTO{
		StateDTO:  toStateDTO(v.State),
		ClanName:  v.ClanName,
		Server:    v.Server.String(),
		Tier:      v.Tier,
		ScoreRate: v.Info.ScoreRate.String(),
		Partition: v.Partition.String(),
		LockedBy:  toEntryPtr(v.LockedBy),
	}
}

func toRunReportDTO(r manager.RunReport) RunReportDTO {
	notes := make([]string, len(r.Notes))
	for i, n := range r.Notes {
		notes[i] = n.String()
	}
	dto := RunReportDTO{
		Record:       toRunDTO(r.Record),
		MemberName:   r.Member.Name,
		Notes:        notes,
		Before:       toStateDTO(r.Before),
		After:        toProgressDTO(r.After),
		Unlocked:     toEntryPtr(r.Unlock.Unlocked),
		LockConflict: toEntryPtr(r.Unlock.Conflict),
		Finished:     toEntryPtr(r.Finished),
	}
	if r.Call != nil {
		dto.Called = toEntryDTOs(r.Call.Subscribers)
		dto.OffTree = toEntryDTOs(r.Call.OffTree)
	}
	return dto
}

func toSubscribeResultDTO(res queue.SubscribeResult, limit int) SubscribeResultDTO {
	dto := SubscribeResultDTO{Accepted: res.Accepted, Limit: limit, Lock: toEntryPtr(res.Lock)}
	if res.Accepted {
		dto.Entry = toEntryPtr(&res.Entry)
	}
	return dto
}

func toRemainDTO(r manager.RemainSummary) RemainDTO {
	return RemainDTO{
		UserID:       r.Member.UserID,
		Name:         r.Member.Name,
		Normal:       r.Normal,
		Tail:         r.Tail,
		Leftover:     r.Leftover,
		Lost:         r.Lost,
		Remain:       r.Remain,
		OwedLeftover: r.OwedLeftover,
	}
}

func toNotificationDTO(n manager.Notification) NotificationDTO {
	dto := NotificationDTO{
		Kind:    string(n.Kind),
		At:      formatTime(n.At),
		Round:   n.Target.Round,
		Boss:    n.Target.Boss,
		Entries: toEntryDTOs(n.Entries),
	}
	for _, r := range n.Remain {
		dto.Remain = append(dto.Remain, toRemainDTO(r))
	}
	return dto
}
