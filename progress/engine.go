package progress

import (
	"context"

	"github.com/warp/clanbattle/battle"
)

// =============================================================================
// PROGRESS STATE - Derived, never stored
// =============================================================================

// State is the clan's position: the boss currently being fought and its
// remaining HP.
type State struct {
	Target    battle.Target
	Remaining int64
	TotalHP   int64
}

// Killed reports whether the boss of s has no HP left.
func (s State) Killed() bool { return s.Remaining <= 0 }

// NextBoss returns the boss after t.
func NextBoss(t battle.Target) battle.Target { return t.Next() }

// Fold derives the progress from records ordered by (round, boss, id).
//
// The last record names the target. Its remaining HP is the total HP minus
// the damage of the trailing records on the same target. A boss brought to
// zero or below is reported as the next boss at full HP.
func Fold(runs []battle.RunRecord, tables Tables, server battle.Server) (State, error) {
	target := battle.Target{Round: 1, Boss: 1}
	if len(runs) > 0 {
		target = runs[len(runs)-1].Target
	}

	info, err := tables.BossInfo(server, target)
	if err != nil {
		return State{}, err
	}

	remaining := info.TotalHP
	for i := len(runs) - 1; i >= 0 && runs[i].Target == target; i-- {
		remaining -= runs[i].Damage
	}
	if remaining > 0 {
		return State{Target: target, Remaining: remaining, TotalHP: info.TotalHP}, nil
	}

	next := NextBoss(target)
	info, err = tables.BossInfo(server, next)
	if err != nil {
		return State{}, err
	}
	return State{Target: next, Remaining: info.TotalHP, TotalHP: info.TotalHP}, nil
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine folds a partition's run records on every call.
type Engine struct {
	runs   battle.RunStore
	tables Tables
}

func NewEngine(runs battle.RunStore, tables Tables) *Engine {
	return &Engine{runs: runs, tables: tables}
}

func (e *Engine) Tables() Tables { return e.tables }

// Current returns the progress of the partition.
func (e *Engine) Current(ctx context.Context, key battle.PartitionKey, server battle.Server) (State, error) {
	runs, err := e.runs.ListRuns(ctx, key)
	if err != nil {
		return State{}, battle.NewStorageError("list runs", err)
	}
	return Fold(runs, e.tables, server)
}
