package manager

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/clanbattle/battle"
)

// RunsPerDay is the number of runs a member gets every clan day.
const RunsPerDay = 3

// =============================================================================
// DAMAGE & SCORE
// =============================================================================

// DamageSummary totals a member's damage over the clan month.
type DamageSummary struct {
	Member battle.Member
	Total  int64
	ByBoss [battle.BossesPerRound]int64
}

// ScoreSummary totals a member's score over the clan month.
type ScoreSummary struct {
	Member battle.Member
	Score  int64
}

// monthLedger loads the clan, its members and the runs of the month
// containing at. The caller holds m.mu.
func (m *Manager) monthLedger(ctx context.Context, at time.Time) (battle.Clan, []battle.Member, []battle.RunRecord, error) {
	c, err := m.clan(ctx)
	if err != nil {
		return battle.Clan{}, nil, nil, err
	}
	members, err := m.listMembers(ctx)
	if err != nil {
		return battle.Clan{}, nil, nil, err
	}
	key := m.partition(c, at)
	runs, err := m.deps.Store.ListRuns(ctx, key)
	if err != nil {
		return battle.Clan{}, nil, nil, m.storeErr("list runs", &key, err)
	}
	return c, members, runs, nil
}

// roster indexes members by key and appends placeholders for members that
// left after recording runs.
func roster(members []battle.Member, runs []battle.RunRecord) ([]battle.Member, map[battle.MemberKey]int) {
	index := make(map[battle.MemberKey]int, len(members))
	for i, mem := range members {
		index[mem.MemberKey] = i
	}
	for _, r := range runs {
		if _, ok := index[r.Member]; ok {
			continue
		}
		index[r.Member] = len(members)
		members = append(members, battle.Member{MemberKey: r.Member, Name: strconv.FormatInt(r.Member.UserID, 10)})
	}
	return members, index
}

// SumDamage totals the damage of every member over the current clan month.
func (m *Manager) SumDamage(ctx context.Context) ([]DamageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, members, runs, err := m.monthLedger(ctx, m.now())
	if err != nil {
		return nil, err
	}
	members, index := roster(members, runs)
	out := make([]DamageSummary, len(members))
	for i, mem := range members {
		out[i].Member = mem
	}
	for _, r := range runs {
		s := &out[index[r.Member]]
		s.Total += r.Damage
		s.ByBoss[r.Target.Boss-1] += r.Damage
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out, nil
}

// SumScore totals the score of every member over the current clan month.
func (m *Manager) SumScore(ctx context.Context) ([]ScoreSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, members, runs, err := m.monthLedger(ctx, m.now())
	if err != nil {
		return nil, err
	}
	members, index := roster(members, runs)
	out := make([]ScoreSummary, len(members))
	for i, mem := range members {
		out[i].Member = mem
	}
	for _, r := range runs {
		score, err := m.deps.Tables.Score(c.Server, r.Target, r.Damage)
		if err != nil {
			return nil, fmt.Errorf("scoring run %d: %w", r.ID, err)
		}
		out[index[r.Member]].Score += score
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// =============================================================================
// REMAINING RUNS
// =============================================================================

// RemainSummary counts a member's runs of one clan day.
type RemainSummary struct {
	Member   battle.Member
	Normal   int
	Tail     int
	Leftover int
	Lost     int

	// Remain is the number of full runs left.
	Remain int

	// OwedLeftover is the number of tails not yet followed by a leftover.
	OwedLeftover int
}

// Done reports whether the member used every run of the day.
func (r RemainSummary) Done() bool { return r.Remain <= 0 && r.OwedLeftover <= 0 }

// RemainRuns reports every member's runs on the clan day containing at. A
// zero at means today.
func (m *Manager) RemainRuns(ctx context.Context, at time.Time) ([]RemainSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at.IsZero() {
		at = m.now()
	}
	return m.remainRuns(ctx, at)
}

func (m *Manager) remainRuns(ctx context.Context, at time.Time) ([]RemainSummary, error) {
	c, members, runs, err := m.monthLedger(ctx, at)
	if err != nil {
		return nil, err
	}
	runs = battle.FilterRunsByDay(runs, at, c.Server.UTCOffset())
	members, index := roster(members, runs)

	out := make([]RemainSummary, len(members))
	for i, mem := range members {
		out[i].Member = mem
	}
	for _, r := range runs {
		s := &out[index[r.Member]]
		switch r.Flag {
		case battle.FlagNormal:
			s.Normal++
		case battle.FlagTail:
			s.Tail++
		case battle.FlagLeftover:
			s.Leftover++
		case battle.FlagLost:
			s.Lost++
		}
	}
	for i := range out {
		s := &out[i]
		s.Remain = RunsPerDay - (s.Normal + s.Tail + s.Lost)
		s.OwedLeftover = s.Tail - s.Leftover
	}
	return out, nil
}

// RemindRemaining announces the members that still have runs on the clan
// day of at; a zero at means now. It returns the members named in the
// reminder.
func (m *Manager) RemindRemaining(ctx context.Context, at time.Time) ([]RemainSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := at
	if now.IsZero() {
		now = m.now()
	}
	all, err := m.remainRuns(ctx, now)
	if err != nil {
		return nil, err
	}
	var pending []RemainSummary
	for _, r := range all {
		if !r.Done() {
			pending = append(pending, r)
		}
	}
	if len(pending) > 0 {
		m.notify(ctx, Notification{Kind: KindRemainReminder, At: now, Remain: pending})
	}
	return pending, nil
}

// =============================================================================
// UNION RUN
// =============================================================================

// UnionPlan tells two members how to share a kill.
type UnionPlan struct {
	// Shortfall is the HP left even if both hit; zero when they can kill.
	Shortfall int64

	// Opener hits first and Finisher kills. Opener is zero when the
	// finisher kills alone. Both are 1 or 2, naming the two damages.
	Opener   int
	Finisher int

	// Seconds is the battle time the finisher gets back, 20 to 110.
	Seconds decimal.Decimal
}

var (
	baseSeconds  = decimal.NewFromInt(20)
	scaleSeconds = decimal.NewFromInt(90)
)

// compensation returns 20 + 90 × (1 − hp/damage), one decimal place.
func compensation(hp, damage int64) decimal.Decimal {
	ratio := decimal.NewFromInt(hp).Div(decimal.NewFromInt(damage))
	return decimal.NewFromInt(1).Sub(ratio).Mul(scaleSeconds).Add(baseSeconds).Round(1)
}

// UnionRun plans how damages a and b can kill a boss with hp left.
func UnionRun(hp, a, b int64) (UnionPlan, error) {
	if hp <= 0 {
		return UnionPlan{}, fmt.Errorf("%w: boss hp must be positive", battle.ErrInvalidArgument)
	}
	if a <= 0 || b <= 0 {
		return UnionPlan{}, fmt.Errorf("%w: both damages must be positive", battle.ErrInvalidDamage)
	}
	if a+b < hp {
		return UnionPlan{Shortfall: hp - a - b}, nil
	}

	bigger, big, small := 2, b, a
	if a > b {
		bigger, big, small = 1, a, b
	}
	switch {
	case a >= hp && b >= hp:
		return UnionPlan{Finisher: bigger, Seconds: compensation(hp, big)}, nil
	case a >= hp:
		return UnionPlan{Finisher: 1, Seconds: compensation(hp, a)}, nil
	case b >= hp:
		return UnionPlan{Finisher: 2, Seconds: compensation(hp, b)}, nil
	}
	return UnionPlan{Opener: bigger, Finisher: 3 - bigger, Seconds: compensation(hp-big, small)}, nil
}
