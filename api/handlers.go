/*
handlers.go - HTTP API handlers for the clan battle ledger

PURPOSE:
  Exposes the per-group manager via REST API. Handles HTTP request and
  response, JSON serialization, and delegates to the manager.

ENDPOINTS (all under /api/groups/{groupID}):
  Clan:
    GET    /clan                        Fetch the clan
    POST   /clan                        Add the clan (admin)
    PUT    /clan                        Add or modify the clan (admin)
    DELETE /clan                        Remove the clan (admin)
    GET    /clans                       List clans of the group

  Members:
    GET    /members                     List members
    POST   /members                     Add or rename a member
    POST   /members/batch               Batch import (admin)
    DELETE /members                     Remove every member (admin)
    GET    /members/{userID}            Fetch a member
    PUT    /members/{userID}            Rename a member
    DELETE /members/{userID}            Remove a member
    GET    /members/{userID}/runs       Runs of the member this month

  Runs & progress:
    POST   /runs                        Submit a run (corrected)
    POST   /runs/raw                    Append a record as is (admin)
    GET    /runs?at=RFC3339             Runs of a clan day
    GET    /runs/{runID}                Fetch a record
    PUT    /runs/{runID}                Rewrite a record
    DELETE /runs/{runID}                Remove a record
    GET    /progress                    Current boss and HP
    POST   /progress                    Fast-forward the clan (admin)
    GET    /bosses/{round}/{boss}       Boss table row
    GET    /tiers/{round}               Tier covering a round

  Summaries: see subscriptions.go for the queue endpoints.
    GET    /stats/damage, /stats/score, /stats/remain?at=RFC3339
    POST   /remind                      Announce members with runs left
    GET    /notifications               Latest announcements

ACTOR:
  X-User-ID carries the caller's user id and X-Admin: true marks an admin.
  Mutations require X-User-ID.

ERROR HANDLING:
  Errors are returned as JSON {error, details, usage} with the status of
  their class:
  - 400: Invalid argument
  - 403: Permission denied
  - 404: Not found
  - 409: Already exists (duplicate, locked)
  - 500: Storage failure

SEE ALSO:
  - dto.go: Request/response data structures
  - subscriptions.go: Queue endpoints
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/manager"
)

const (
	headerUserID = "X-User-ID"
	headerAdmin  = "X-Admin"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Groups *manager.Registry
	Feed   *manager.Feed
	Logger *zap.Logger

	// Track the last loaded demo scenario per group
	mu        sync.Mutex
	scenarios map[int64]string
}

// NewHandler creates a handler serving every group of the registry.
func NewHandler(groups *manager.Registry, feed *manager.Feed, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Groups:    groups,
		Feed:      feed,
		Logger:    logger,
		scenarios: make(map[int64]string),
	}
}

// group resolves the manager named by the {groupID} path parameter.
func (h *Handler) group(r *http.Request) (*manager.Manager, error) {
	id, err := pathInt(r, "groupID")
	if err != nil {
		return nil, err
	}
	return h.Groups.Group(id), nil
}

// actor reads the caller from the request headers.
func actor(r *http.Request) (battle.Actor, error) {
	raw := strings.TrimSpace(r.Header.Get(headerUserID))
	if raw == "" {
		return battle.Actor{}, battle.WithUsage(
			fmt.Errorf("%w: missing caller", battle.ErrInvalidArgument),
			"set the "+headerUserID+" header to your user id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return battle.Actor{}, battle.WithUsage(
			fmt.Errorf("%w: bad %s %q", battle.ErrInvalidArgument, headerUserID, raw),
			headerUserID+" must be a positive integer")
	}
	admin, _ := strconv.ParseBool(r.Header.Get(headerAdmin))
	return battle.Actor{UserID: id, Admin: admin}, nil
}

// call resolves the group and the caller of a mutating request.
func (h *Handler) call(r *http.Request) (*manager.Manager, battle.Actor, error) {
	m, err := h.group(r)
	if err != nil {
		return nil, battle.Actor{}, err
	}
	a, err := actor(r)
	if err != nil {
		return nil, battle.Actor{}, err
	}
	return m, a, nil
}

// =============================================================================
// CLAN HANDLERS
// =============================================================================

// GetClan returns the group's clan.
func (h *Handler) GetClan(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	c, err := m.FetchClan(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClanDTO(c))
}

func (h *Handler) ListClans(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	clans, err := m.ListClans(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]ClanDTO, len(clans))
	for i, c := range clans {
		dtos[i] = toClanDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClan adds the clan; it fails when one exists.
func (h *Handler) CreateClan(w http.ResponseWriter, r *http.Request) {
	m, a, req, server, ok := h.clanRequest(w, r)
	if !ok {
		return
	}
	c, err := m.AddClan(r.Context(), a, req.Name, server)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClanDTO(c))
}

// SaveClan adds the clan or updates the existing one.
func (h *Handler) SaveClan(w http.ResponseWriter, r *http.Request) {
	m, a, req, server, ok := h.clanRequest(w, r)
	if !ok {
		return
	}
	c, created, err := m.SaveClan(r.Context(), a, req.Name, server)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toClanDTO(c))
}

func (h *Handler) clanRequest(w http.ResponseWriter, r *http.Request) (*manager.Manager, battle.Actor, SaveClanRequest, battle.Server, bool) {
	var req SaveClanRequest
	m, a, err := h.call(r)
	if err == nil {
		err = decode(r, &req)
	}
	var server battle.Server
	if err == nil {
		server, err = battle.ParseServer(req.Server)
		err = battle.WithUsage(err, `server is one of "jp", "tw", "cn"`)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return nil, battle.Actor{}, req, 0, false
	}
	return m, a, req, server, true
}

func (h *Handler) DeleteClan(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	if err == nil {
		err = m.RemoveClan(r.Context(), a)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	members, err := m.ListMembers(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, mem := range members {
		dtos[i] = toMemberDTO(mem)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddMember joins a member, or renames them when they already joined.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	m, a, err := h.call(r)
	if err == nil {
		err = decode(r, &req)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	mem, added, err := m.AddMember(r.Context(), a, req.UserID, req.Name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, toMemberDTO(mem))
}

func (h *Handler) BatchAddMembers(w http.ResponseWriter, r *http.Request) {
	var req BatchMembersRequest
	m, a, err := h.call(r)
	if err == nil {
		err = decode(r, &req)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	inputs := make([]manager.MemberInput, len(req.Members))
	for i, in := range req.Members {
		inputs[i] = manager.MemberInput{UserID: in.UserID, Name: in.Name}
	}
	res, err := m.BatchAddMembers(r.Context(), a, inputs)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResultDTO{Succeeded: res.Succeeded, Failed: res.Failed})
}

func (h *Handler) ClearMembers(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	n, err := m.ClearMembers(r.Context(), a)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	userID, err := pathInt(r, "userID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	mem, err := m.FetchMember(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(mem))
}

func (h *Handler) RenameMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	m, a, err := h.call(r)
	var userID int64
	if err == nil {
		userID, err = pathInt(r, "userID")
	}
	if err == nil {
		err = decode(r, &req)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	mem, err := m.ModifyMember(r.Context(), a, userID, req.Name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(mem))
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	var userID int64
	if err == nil {
		userID, err = pathInt(r, "userID")
	}
	if err == nil {
		err = m.RemoveMember(r.Context(), a, userID)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMemberRuns(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	var userID int64
	if err == nil {
		userID, err = pathInt(r, "userID")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	runs, err := m.ListRunsByUser(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTOs(runs))
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// SubmitRun records a run through the correction policy.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	m, a, err := h.call(r)
	if err == nil {
		err = decode(r, &req)
	}
	var flag battle.RecordFlag
	if err == nil {
		flag, err = battle.ParseRecordFlag(req.Flag)
		err = battle.WithUsage(err, `flag is one of "normal", "tail", "leftover", "lost"`)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	report, err := m.SubmitRun(r.Context(), a, manager.RunSubmission{
		UserID:    req.UserID,
		Round:     req.Round,
		Boss:      req.Boss,
		Damage:    req.Damage,
		Flag:      flag,
		DayOffset: req.DayOffset,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunReportDTO(report))
}

// AddRawRun appends a record without correction or queue updates.
func (h *Handler) AddRawRun(w http.ResponseWriter, r *http.Request) {
	var req RawRunRequest
	m, a, err := h.call(r)
	if err == nil {
		err = decode(r, &req)
	}
	var flag battle.RecordFlag
	if err == nil {
		flag, err = battle.ParseRecordFlag(req.Flag)
	}
	var at time.Time
	if err == nil && req.SubmittedAt != "" {
		at, err = parseTime(req.SubmittedAt)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = a.UserID
	}

	rec, err := m.AddRun(r.Context(), a, battle.RunRecord{
		Member:      battle.MemberKey{UserID: userID},
		SubmittedAt: at,
		Target:      battle.Target{Round: req.Round, Boss: req.Boss},
		Damage:      req.Damage,
		Flag:        flag,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(rec))
}

// ListRuns returns the runs of the clan day containing ?at (default today).
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	var at time.Time
	if err == nil {
		at, err = queryTime(r, "at")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	runs, err := m.ListRunsByDay(r.Context(), at)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTOs(runs))
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	var id int64
	if err == nil {
		id, err = pathInt(r, "runID")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	rec, err := m.FetchRun(r.Context(), battle.RunID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(rec))
}

func (h *Handler) ModifyRun(w http.ResponseWriter, r *http.Request) {
	var req ModifyRunRequest
	m, a, err := h.call(r)
	var id int64
	if err == nil {
		id, err = pathInt(r, "runID")
	}
	if err == nil {
		err = decode(r, &req)
	}
	var flag battle.RecordFlag
	if err == nil {
		flag, err = battle.ParseRecordFlag(req.Flag)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	rec, err := m.ModifyRun(r.Context(), a, manager.RunEdit{
		ID:     battle.RunID(id),
		Target: battle.Target{Round: req.Round, Boss: req.Boss},
		Damage: req.Damage,
		Flag:   flag,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(rec))
}

func (h *Handler) RemoveRun(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	var id int64
	if err == nil {
		id, err = pathInt(r, "runID")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	rec, err := m.RemoveRun(r.Context(), a, battle.RunID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(rec))
}

// =============================================================================
// PROGRESS HANDLERS
// =============================================================================

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	view, err := m.CurrentProgress(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(view))
}

func (h *Handler) ChangeProgress(w http.ResponseWriter, r *http.Request) {
	var req ChangeProgressRequest
	m, a, err := h.call(r)
	if err == nil {
		err = decode(r, &req)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	hp := int64(math.MaxInt64)
	if req.HP != nil {
		hp = *req.HP
	}
	view, err := m.ChangeProgress(r.Context(), a, req.Round, req.Boss, hp)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(view))
}

func (h *Handler) GetBossInfo(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	var round, boss int64
	if err == nil {
		round, err = pathInt(r, "round")
	}
	if err == nil {
		boss, err = pathInt(r, "boss")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	target := battle.Target{Round: int(round), Boss: int(boss)}
	info, err := m.BossInfo(r.Context(), target)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BossInfoDTO{
		Round:     target.Round,
		Boss:      target.Boss,
		TotalHP:   info.TotalHP,
		ScoreRate: info.ScoreRate.String(),
		Tier:      info.Tier,
	})
}

func (h *Handler) GetTier(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	var round int64
	if err == nil {
		round, err = pathInt(r, "round")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	tier, err := m.CurrentTier(r.Context(), int(round))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"round": int(round), "tier": tier})
}

// =============================================================================
// SUMMARY HANDLERS
// =============================================================================

func (h *Handler) SumDamage(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	sums, err := m.SumDamage(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]DamageSummaryDTO, len(sums))
	for i, s := range sums {
		dtos[i] = DamageSummaryDTO{UserID: s.Member.UserID, Name: s.Member.Name, Total: s.Total, ByBoss: s.ByBoss}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SumScore(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	sums, err := m.SumScore(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]ScoreSummaryDTO, len(sums))
	for i, s := range sums {
		dtos[i] = ScoreSummaryDTO{UserID: s.Member.UserID, Name: s.Member.Name, Score: s.Score}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RemainRuns(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	var at time.Time
	if err == nil {
		at, err = queryTime(r, "at")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	remain, err := m.RemainRuns(r.Context(), at)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RemainDTO, len(remain))
	for i, s := range remain {
		dtos[i] = toRemainDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Remind announces the members with runs left today.
func (h *Handler) Remind(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	if err == nil && !a.Admin {
		err = fmt.Errorf("%w: reminders require an admin", battle.ErrPermissionDenied)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	at, err := queryTime(r, "at")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	pending, err := m.RemindRemaining(r.Context(), at)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]RemainDTO, len(pending))
	for i, s := range pending {
		dtos[i] = toRemainDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListNotifications returns the group's latest announcements, oldest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := []NotificationDTO{}
	if h.Feed != nil {
		for _, n := range h.Feed.List(m.GroupID()) {
			dtos = append(dtos, toNotificationDTO(n))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UnionRun plans a two-member kill. It needs no group.
func (h *Handler) UnionRun(w http.ResponseWriter, r *http.Request) {
	var req UnionRunRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	plan, err := manager.UnionRun(req.HP, req.A, req.B)
	if err != nil {
		h.writeDomainError(w, battle.WithUsage(err, `{"hp": remaining HP, "a": damage, "b": damage}`))
		return
	}
	writeJSON(w, http.StatusOK, UnionPlanDTO{
		Shortfall: plan.Shortfall,
		Opener:    plan.Opener,
		Finisher:  plan.Finisher,
		Seconds:   plan.Seconds.String(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		resp.Usage = battle.Usage(err)
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps an error class onto its HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, battle.ErrStorage):
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Storage failure", err)
	case errors.Is(err, battle.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, battle.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, battle.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Permission denied", err)
	case errors.Is(err, battle.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", battle.ErrInvalidArgument, err)
	}
	return nil
}

func pathInt(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", battle.ErrInvalidArgument, name, raw)
	}
	return v, nil
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, battle.WithUsage(
			fmt.Errorf("%w: time %q", battle.ErrInvalidArgument, raw),
			"times use RFC 3339, e.g. 2026-10-23T12:00:00+08:00")
	}
	return t, nil
}

// queryTime returns the zero time when the parameter is absent.
func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return parseTime(raw)
}
