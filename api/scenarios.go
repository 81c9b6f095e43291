/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate a group with realistic clan
  battle data for testing and demos. Every scenario goes through the
  manager, so the data is exactly what players would have produced.

AVAILABLE SCENARIOS:
  fresh-clan:     CN clan with five members, no runs yet
  mid-battle:     Fresh clan plus a kill, a leftover, a normal and a lost run
  queued-bosses:  Mid-battle plus a subscription, a whole run lock and an on-tree

HOW SCENARIOS WORK:
 1. Require a group without a clan (scenarios never overwrite data)
 2. Create the clan and its members as the demo admin
 3. Submit runs on behalf of members, sized from the live boss HP
 4. Optionally queue members for upcoming bosses

USAGE VIA API:
  POST /api/groups/{groupID}/scenarios/load
  {"scenario_id": "queued-bosses"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, m)
 3. Add case to applyScenario

SEE ALSO:
  - handlers.go: Handler and helpers
  - manager/: Operations used by the loaders
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/manager"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-clan",
		Name:        "Fresh Clan",
		Description: "CN clan with five members and no runs",
	},
	{
		ID:          "mid-battle",
		Name:        "Mid Battle",
		Description: "First boss killed with a tail, leftover and lost runs on the second",
	},
	{
		ID:          "queued-bosses",
		Name:        "Queued Bosses",
		Description: "Mid battle plus subscriptions, a whole run lock and a member on the tree",
	},
}

// Demo actors. User ids are far from real ids of chat platforms.
const (
	demoAdminID int64 = 900000
	demoUserID  int64 = 900001
)

var demoAdmin = battle.Actor{UserID: demoAdminID, Admin: true}

var demoMembers = []string{"Kokkoro", "Pecorine", "Karyl", "Yuki", "Kyaru"}

func demoUser(i int) int64 { return demoUserID + int64(i) }

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the scenario last loaded into the group, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathInt(r, "groupID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.mu.Lock()
	current := h.scenarios[groupID]
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario into a group without a clan.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	m, err := h.group(r)
	if err == nil {
		err = decode(r, &req)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if err := applyScenario(r.Context(), m, req.ScenarioID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.mu.Lock()
	h.scenarios[m.GroupID()] = req.ScenarioID
	h.mu.Unlock()
	h.Logger.Info("scenario loaded", zap.Int64("group", m.GroupID()), zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func applyScenario(ctx context.Context, m *manager.Manager, id string) error {
	var load func(context.Context, *manager.Manager) error
	switch id {
	case "fresh-clan":
		load = loadFreshClanScenario
	case "mid-battle":
		load = loadMidBattleScenario
	case "queued-bosses":
		load = loadQueuedBossesScenario
	default:
		return battle.WithUsage(
			fmt.Errorf("%w: unknown scenario %q", battle.ErrInvalidArgument, id),
			"GET /api/scenarios lists the available scenarios")
	}

	if _, err := m.FetchClan(ctx); err == nil {
		return battle.WithUsage(
			fmt.Errorf("%w: group %d already has a clan", battle.ErrClanExists, m.GroupID()),
			"load scenarios into a group without a clan")
	} else if !battle.IsNotFound(err) {
		return err
	}
	return load(ctx, m)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadFreshClanScenario(ctx context.Context, m *manager.Manager) error {
	if _, err := m.AddClan(ctx, demoAdmin, "Demo Guild", battle.ServerCN); err != nil {
		return err
	}
	inputs := make([]manager.MemberInput, len(demoMembers))
	for i, name := range demoMembers {
		inputs[i] = manager.MemberInput{UserID: demoUser(i), Name: name}
	}
	res, err := m.BatchAddMembers(ctx, demoAdmin, inputs)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("adding demo members: %d of %d failed", res.Failed, len(inputs))
	}
	return nil
}

func loadMidBattleScenario(ctx context.Context, m *manager.Manager) error {
	if err := loadFreshClanScenario(ctx, m); err != nil {
		return err
	}

	// The first member kills boss 1 and follows up with the leftover.
	first, err := m.CurrentProgress(ctx)
	if err != nil {
		return err
	}
	if err := submit(ctx, m, 0, first.Remaining, battle.FlagTail); err != nil {
		return err
	}
	second, err := m.CurrentProgress(ctx)
	if err != nil {
		return err
	}
	runs := []struct {
		member int
		damage int64
		flag   battle.RecordFlag
	}{
		{0, second.Remaining / 4, battle.FlagNormal},
		{1, second.Remaining / 3, battle.FlagNormal},
		{2, 0, battle.FlagLost},
	}
	for _, run := range runs {
		if err := submit(ctx, m, run.member, run.damage, run.flag); err != nil {
			return err
		}
	}
	return nil
}

func loadQueuedBossesScenario(ctx context.Context, m *manager.Manager) error {
	if err := loadMidBattleScenario(ctx, m); err != nil {
		return err
	}

	// Next boss for one member, a whole run on the boss after it for another.
	cur, err := m.CurrentProgress(ctx)
	if err != nil {
		return err
	}
	next := cur.Target.Next()
	after := next.Next()
	if _, err := m.Subscribe(ctx, member(3), next.Round, next.Boss, "after the current one"); err != nil {
		return err
	}
	if _, err := m.SubscribeWhole(ctx, member(4), after.Round, after.Boss, "full run"); err != nil {
		return err
	}
	_, err = m.OnTree(ctx, member(1))
	return err
}

func member(i int) battle.Actor { return battle.Actor{UserID: demoUser(i)} }

func submit(ctx context.Context, m *manager.Manager, i int, damage int64, flag battle.RecordFlag) error {
	_, err := m.SubmitRun(ctx, demoAdmin, manager.RunSubmission{
		UserID: demoUser(i),
		Damage: damage,
		Flag:   flag,
	})
	return err
}
