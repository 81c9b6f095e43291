/*
subscriptions.go - HTTP handlers for the boss queue

ENDPOINTS (all under /api/groups/{groupID}):
  GET    /subscriptions                     Today's active subscriptions
  GET    /subscriptions/all                 Every entry of the month
  POST   /subscriptions                     Subscribe (whole=true also locks)
  DELETE /subscriptions/{entryID}           Cancel a subscription
  POST   /subscriptions/{entryID}/swap      Move a subscription to a later round
  GET    /members/{userID}/subscriptions    Today's subscriptions of a member
  DELETE /bosses/{round}/{boss}/subscriptions   Cancel every entry of a boss
  GET    /locks                             Held locks
  POST   /locks                             Lock the current boss
  POST   /locks/ahead                       Lock a subscribed future boss
  DELETE /locks                             Release the caller's lock
  GET    /ontree                            Members on the tree
  POST   /ontree                            Hang on the tree at the current boss

A zero round in a request body means the boss's next appearance.

SEE ALSO:
  - handlers.go: Shared helpers and error mapping
  - queue/: Entry state machine
*/
package api

import (
	"context"
	"net/http"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/manager"
)

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.listEntries(w, r, (*manager.Manager).ListSubscriptions)
}

func (h *Handler) ListAllEntries(w http.ResponseWriter, r *http.Request) {
	h.listEntries(w, r, (*manager.Manager).ListEntries)
}

func (h *Handler) ListLocks(w http.ResponseWriter, r *http.Request) {
	h.listEntries(w, r, (*manager.Manager).ListLocked)
}

func (h *Handler) ListOnTree(w http.ResponseWriter, r *http.Request) {
	h.listEntries(w, r, (*manager.Manager).ListOnTree)
}

func (h *Handler) ListMemberSubscriptions(w http.ResponseWriter, r *http.Request) {
	m, err := h.group(r)
	var userID int64
	if err == nil {
		userID, err = pathInt(r, "userID")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	es, err := m.ListUserSubscriptions(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(es))
}

// Subscribe queues the caller. A full boss answers 200 with accepted=false.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	m, a, err := h.call(r)
	if err == nil {
		err = decode(r, &req)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	subscribe := m.Subscribe
	if req.Whole {
		subscribe = m.SubscribeWhole
	}
	res, err := subscribe(r.Context(), a, req.Round, req.Boss, req.Message)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if res.Accepted {
		status = http.StatusCreated
	}
	writeJSON(w, status, toSubscribeResultDTO(res, m.SubscribeLimit()))
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	var id int64
	if err == nil {
		id, err = pathInt(r, "entryID")
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	e, err := m.Unsubscribe(r.Context(), a, battle.EntryID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// SwapRound returns every entry that moved.
func (h *Handler) SwapRound(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	m, a, err := h.call(r)
	var id int64
	if err == nil {
		id, err = pathInt(r, "entryID")
	}
	if err == nil {
		err = decode(r, &req)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	moved, err := m.SwapRound(r.Context(), a, battle.EntryID(id), req.Round)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(moved))
}

func (h *Handler) ClearTarget(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
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
	cleared, err := m.ClearTarget(r.Context(), a, int(round), int(boss))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(cleared))
}

// =============================================================================
// LOCKS & ON TREE
// =============================================================================

func (h *Handler) LockBoss(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeEntry(w, http.StatusCreated)(m.LockBoss(r.Context(), a))
}

func (h *Handler) LockBossAhead(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	m, a, err := h.call(r)
	if err == nil {
		err = decode(r, &req)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeEntry(w, http.StatusCreated)(m.LockBossAhead(r.Context(), a, req.Round, req.Boss))
}

func (h *Handler) UnlockBoss(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeEntry(w, http.StatusOK)(m.UnlockBoss(r.Context(), a))
}

func (h *Handler) OnTree(w http.ResponseWriter, r *http.Request) {
	m, a, err := h.call(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeEntry(w, http.StatusCreated)(m.OnTree(r.Context(), a))
}

// =============================================================================
// HELPERS
// =============================================================================

type entryLister func(*manager.Manager, context.Context) ([]battle.Entry, error)

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request, list entryLister) {
	m, err := h.group(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	es, err := list(m, r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(es))
}

func (h *Handler) writeEntry(w http.ResponseWriter, status int) func(battle.Entry, error) {
	return func(e battle.Entry, err error) {
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, status, toEntryDTO(e))
	}
}
