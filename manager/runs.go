package manager

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/clanbattle/battle"
	"github.com/warp/clanbattle/correction"
	"github.com/warp/clanbattle/progress"
	"github.com/warp/clanbattle/queue"
)

// =============================================================================
// SUBMIT RUN
// =============================================================================

// RunSubmission is a run reported by a member, possibly on behalf of another.
type RunSubmission struct {
	// UserID is the member who fought; zero means the actor.
	UserID int64

	// Round and Boss are zero when the current boss is meant.
	Round  int
	Boss   int
	Damage int64
	Flag   battle.RecordFlag

	// DayOffset backdates the run by whole days.
	DayOffset int
}

// ProgressView is a progress state together with its boss table row.
type ProgressView struct {
	progress.State
	Tier      int
	Info      progress.BossInfo
	LockedBy  *battle.Entry
	ClanName  string
	Server    battle.Server
	Partition battle.PartitionKey
}

// RunReport describes everything a submission changed.
type RunReport struct {
	Record battle.RunRecord
	Member battle.Member
	Notes  []correction.Note
	Before progress.State
	After  ProgressView

	// Call is set when the submission moved the clan to another boss.
	Call *queue.Call

	Unlock   queue.AutoUnlockResult
	Finished *battle.Entry
}

// ProgressChanged reports whether the submission moved the clan to another boss.
func (r RunReport) ProgressChanged() bool { return r.Before.Target != r.After.Target }

// SubmitRun corrects and records a run, then updates the queue around it.
func (m *Manager) SubmitRun(ctx context.Context, actor battle.Actor, sub RunSubmission) (RunReport, error) {
	if sub.DayOffset < 0 {
		return RunReport{}, fmt.Errorf("%w: negative day offset", battle.ErrInvalidArgument)
	}
	if sub.UserID == 0 {
		sub.UserID = actor.UserID
	}
	if sub.Flag == battle.FlagLost {
		sub.Damage = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.openAt(ctx, sub.DayOffset)
	if err != nil {
		return RunReport{}, err
	}
	member, err := m.deps.Store.GetMember(ctx, m.memberKey(sub.UserID))
	if err != nil {
		return RunReport{}, m.storeErr("get member", nil, err)
	}

	prior, err := m.lastRunOfDay(ctx, s, member.MemberKey)
	if err != nil {
		return RunReport{}, err
	}
	out, err := correction.Apply(correction.Submission{
		Round:  sub.Round,
		Boss:   sub.Boss,
		Damage: sub.Damage,
		Flag:   sub.Flag,
	}, s.state, prior)
	if err != nil {
		return RunReport{}, err
	}
	if _, err := m.deps.Tables.BossInfo(s.clan.Server, out.Target); err != nil {
		return RunReport{}, err
	}

	rec := battle.RunRecord{
		Member:      member.MemberKey,
		SubmittedAt: s.now,
		Target:      out.Target,
		Damage:      out.Damage,
		Flag:        out.Flag,
	}
	if rec.ID, err = m.deps.Store.AppendRun(ctx, s.key, rec); err != nil {
		return RunReport{}, m.storeErr("append run", &s.key, err)
	}
	m.deps.Metrics.RunRecorded(rec.Flag.String())
	for _, n := range out.Notes {
		m.deps.Metrics.Correction(n.String())
	}
	m.log.Info("run recorded",
		zap.Int64("run", int64(rec.ID)),
		zap.Int64("user", rec.Member.UserID),
		zap.Stringer("target", rec.Target),
		zap.Int64("damage", rec.Damage),
		zap.Stringer("flag", rec.Flag),
	)

	report := RunReport{Record: rec, Member: member, Notes: out.Notes, Before: s.state}
	after := s
	if after.state, err = m.engine.Current(ctx, s.key, s.clan.Server); err != nil {
		return RunReport{}, m.storeErr("fold progress", &s.key, err)
	}
	if err := m.afterRun(ctx, actor, s, after, member.MemberKey, &report); err != nil {
		return RunReport{}, err
	}
	if report.After, err = m.view(ctx, after); err != nil {
		return RunReport{}, err
	}
	return report, nil
}

// afterRun calls the subscribers of a newly reached boss, then releases the
// actor's lock and the member's subscription on the boss fought.
func (m *Manager) afterRun(ctx context.Context, actor battle.Actor, before, after session, member battle.MemberKey, report *RunReport) error {
	sc := after.scope()
	if before.state.Target != after.state.Target {
		call, err := m.queue.CallSubscribers(ctx, sc, after.state.Target)
		if err != nil {
			return m.storeErr("call subscribers", &sc.Key, err)
		}
		report.Call = &call
		m.announceCall(ctx, call)
	}

	unlock, err := m.queue.AutoUnlock(ctx, sc, actor, before.state.Target)
	if err != nil {
		return m.storeErr("auto unlock", &sc.Key, err)
	}
	report.Unlock = unlock
	switch {
	case unlock.Unlocked != nil:
		m.deps.Metrics.QueueTransition(battle.EntryFinished.String())
		m.notify(ctx, Notification{Kind: KindAutoUnlock, Target: before.state.Target, Entries: []battle.Entry{*unlock.Unlocked}})
	case unlock.Conflict != nil:
		m.notify(ctx, Notification{Kind: KindLockConflict, Target: before.state.Target, Entries: []battle.Entry{*unlock.Conflict}})
	}

	finished, err := m.queue.AutoFinish(ctx, sc, member, before.state.Target)
	if err != nil {
		return m.storeErr("auto finish", &sc.Key, err)
	}
	if finished != nil {
		report.Finished = finished
		m.deps.Metrics.QueueTransition(battle.EntryFinished.String())
		m.notify(ctx, Notification{Kind: KindAutoFinish, Target: before.state.Target, Entries: []battle.Entry{*finished}})
	}
	return nil
}

func (m *Manager) announceCall(ctx context.Context, call queue.Call) {
	if len(call.Subscribers) > 0 {
		m.notify(ctx, Notification{Kind: KindCallSubscribers, Target: call.Target, Entries: call.Subscribers})
	}
	if len(call.OffTree) > 0 {
		for range call.OffTree {
			m.deps.Metrics.QueueTransition(battle.EntryFinished.String())
		}
		m.notify(ctx, Notification{Kind: KindOffTree, Target: call.Target, Entries: call.OffTree})
	}
}

// openAt opens a session backdated by dayOffset days.
func (m *Manager) openAt(ctx context.Context, dayOffset int) (session, error) {
	c, err := m.clan(ctx)
	if err != nil {
		return session{}, err
	}
	now := m.now().AddDate(0, 0, -dayOffset)
	s := session{clan: c, key: m.partition(c, now), now: now}
	if s.state, err = m.engine.Current(ctx, s.key, c.Server); err != nil {
		return session{}, m.storeErr("fold progress", &s.key, err)
	}
	return s, nil
}

// lastRunOfDay returns the member's latest record of the session's clan day.
func (m *Manager) lastRunOfDay(ctx context.Context, s session, member battle.MemberKey) (*battle.RunRecord, error) {
	runs, err := m.deps.Store.ListRunsByMember(ctx, s.key, member)
	if err != nil {
		return nil, m.storeErr("list member runs", &s.key, err)
	}
	today := battle.FilterRunsByDay(runs, s.now, s.clan.Server.UTCOffset())
	if len(today) == 0 {
		return nil, nil
	}
	last := today[0]
	for _, r := range today[1:] {
		if r.ID > last.ID {
			last = r
		}
	}
	return &last, nil
}

func (m *Manager) view(ctx context.Context, s session) (ProgressView, error) {
	info, err := m.deps.Tables.BossInfo(s.clan.Server, s.state.Target)
	if err != nil {
		return ProgressView{}, err
	}
	lock, err := m.queue.LockHolder(ctx, s.scope(), s.state.Target)
	if err != nil {
		return ProgressView{}, m.storeErr("lock holder", &s.key, err)
	}
	return ProgressView{
		State:     s.state,
		Tier:      info.Tier,
		Info:      info,
		LockedBy:  lock,
		ClanName:  s.clan.Name,
		Server:    s.clan.Server,
		Partition: s.key,
	}, nil
}

// =============================================================================
// RECORD MAINTENANCE
// =============================================================================

// AddRun appends a record as given, without correction or queue updates.
func (m *Manager) AddRun(ctx context.Context, actor battle.Actor, rec battle.RunRecord) (battle.RunRecord, error) {
	if err := requireAdmin(actor, "adding a raw record"); err != nil {
		return battle.RunRecord{}, err
	}
	if err := validateRecord(rec); err != nil {
		return battle.RunRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.clan(ctx)
	if err != nil {
		return battle.RunRecord{}, err
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = m.now()
	}
	if rec.Member.AltID == 0 {
		rec.Member.AltID = m.groupID
	}
	key := m.partition(c, rec.SubmittedAt)
	if rec.ID, err = m.deps.Store.AppendRun(ctx, key, rec); err != nil {
		return battle.RunRecord{}, m.storeErr("append run", &key, err)
	}
	m.deps.Metrics.RunRecorded(rec.Flag.String())
	return rec, nil
}

// RunEdit replaces the target, damage and flag of an existing record.
type RunEdit struct {
	ID     battle.RunID
	Target battle.Target
	Damage int64
	Flag   battle.RecordFlag
}

// ModifyRun rewrites a record of the current clan month. The record's
// owner or an admin may do so.
func (m *Manager) ModifyRun(ctx context.Context, actor battle.Actor, edit RunEdit) (battle.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, key, err := m.ownedRun(ctx, actor, edit.ID, "modify")
	if err != nil {
		return battle.RunRecord{}, err
	}
	rec.Target, rec.Damage, rec.Flag = edit.Target, edit.Damage, edit.Flag
	if err := validateRecord(rec); err != nil {
		return battle.RunRecord{}, err
	}
	if err := m.deps.Store.UpdateRun(ctx, key, rec); err != nil {
		return battle.RunRecord{}, m.storeErr("update run", &key, err)
	}
	return rec, nil
}

// RemoveRun deletes a record of the current clan month. The record's owner
// or an admin may do so.
func (m *Manager) RemoveRun(ctx context.Context, actor battle.Actor, id battle.RunID) (battle.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, key, err := m.ownedRun(ctx, actor, id, "remove")
	if err != nil {
		return battle.RunRecord{}, err
	}
	if err := m.deps.Store.DeleteRun(ctx, key, id); err != nil {
		return battle.RunRecord{}, m.storeErr("delete run", &key, err)
	}
	m.log.Info("run removed", zap.Int64("run", int64(id)), zap.Int64("user", rec.Member.UserID))
	return rec, nil
}

func (m *Manager) ownedRun(ctx context.Context, actor battle.Actor, id battle.RunID, verb string) (battle.RunRecord, battle.PartitionKey, error) {
	c, err := m.clan(ctx)
	if err != nil {
		return battle.RunRecord{}, battle.PartitionKey{}, err
	}
	key := m.partition(c, m.now())
	rec, err := m.deps.Store.GetRun(ctx, key, id)
	if err != nil {
		return battle.RunRecord{}, key, m.storeErr("get run", &key, err)
	}
	if !actor.CanModify(rec.Member) {
		return battle.RunRecord{}, key, fmt.Errorf("%w: only admins can %s runs of other members", battle.ErrPermissionDenied, verb)
	}
	return rec, key, nil
}

func validateRecord(rec battle.RunRecord) error {
	if err := rec.Target.Validate(); err != nil {
		return err
	}
	if rec.Damage < 0 {
		return fmt.Errorf("%w: %d", battle.ErrInvalidDamage, rec.Damage)
	}
	return nil
}

func (m *Manager) FetchRun(ctx context.Context, id battle.RunID) (battle.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.clan(ctx)
	if err != nil {
		return battle.RunRecord{}, err
	}
	key := m.partition(c, m.now())
	rec, err := m.deps.Store.GetRun(ctx, key, id)
	if err != nil {
		return battle.RunRecord{}, m.storeErr("get run", &key, err)
	}
	return rec, nil
}

// ListRunsByUser returns the member's records of the current clan month.
func (m *Manager) ListRunsByUser(ctx context.Context, userID int64) ([]battle.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.clan(ctx)
	if err != nil {
		return nil, err
	}
	key := m.partition(c, m.now())
	runs, err := m.deps.Store.ListRunsByMember(ctx, key, m.memberKey(userID))
	if err != nil {
		return nil, m.storeErr("list member runs", &key, err)
	}
	return runs, nil
}

// ListRunsByDay returns the records of the clan day containing at. A zero
// at means today.
func (m *Manager) ListRunsByDay(ctx context.Context, at time.Time) ([]battle.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at.IsZero() {
		at = m.now()
	}
	c, err := m.clan(ctx)
	if err != nil {
		return nil, err
	}
	key := m.partition(c, at)
	runs, err := m.deps.Store.ListRuns(ctx, key)
	if err != nil {
		return nil, m.storeErr("list runs", &key, err)
	}
	return battle.FilterRunsByDay(runs, at, c.Server.UTCOffset()), nil
}

// =============================================================================
// PROGRESS
// =============================================================================

// CurrentProgress returns the boss being fought, its table row and lock.
func (m *Manager) CurrentProgress(ctx context.Context) (ProgressView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.open(ctx)
	if err != nil {
		return ProgressView{}, err
	}
	return m.view(ctx, s)
}

// BossInfo returns the table row of a boss on the clan's server.
func (m *Manager) BossInfo(ctx context.Context, target battle.Target) (progress.BossInfo, error) {
	if err := target.Validate(); err != nil {
		return progress.BossInfo{}, err
	}
	c, err := m.FetchClan(ctx)
	if err != nil {
		return progress.BossInfo{}, err
	}
	return m.deps.Tables.BossInfo(c.Server, target)
}

// CurrentTier returns the tier covering round on the clan's server.
func (m *Manager) CurrentTier(ctx context.Context, round int) (int, error) {
	c, err := m.FetchClan(ctx)
	if err != nil {
		return 0, err
	}
	return m.deps.Tables.CurrentTier(c.Server, round)
}

// ChangeProgress fast-forwards the clan to target with hp left on it by
// recording NORMAL runs in the actor's name. A zero round or boss keeps the
// current one. Moving backward is rejected.
func (m *Manager) ChangeProgress(ctx context.Context, actor battle.Actor, round, boss int, hp int64) (ProgressView, error) {
	if err := requireAdmin(actor, "changing progress"); err != nil {
		return ProgressView{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.open(ctx)
	if err != nil {
		return ProgressView{}, err
	}
	target := s.state.Target
	if round != 0 {
		target.Round = round
	}
	if boss != 0 {
		target.Boss = boss
	}
	if err := target.Validate(); err != nil {
		return ProgressView{}, err
	}
	if _, err := m.deps.Tables.BossInfo(s.clan.Server, target); err != nil {
		return ProgressView{}, err
	}
	if target.Before(s.state.Target) {
		return ProgressView{}, fmt.Errorf("%w: clan is at %s, %d/%d HP",
			battle.ErrProgressBackward, s.state.Target, s.state.Remaining, s.state.TotalHP)
	}

	start := s.state.Target
	member := m.memberKey(actor.UserID)
	write := func(damage int64) error {
		rec := battle.RunRecord{Member: member, SubmittedAt: s.now, Target: s.state.Target, Damage: damage, Flag: battle.FlagNormal}
		if _, err := m.deps.Store.AppendRun(ctx, s.key, rec); err != nil {
			return m.storeErr("append run", &s.key, err)
		}
		m.deps.Metrics.RunRecorded(rec.Flag.String())
		if s.state, err = m.engine.Current(ctx, s.key, s.clan.Server); err != nil {
			return m.storeErr("fold progress", &s.key, err)
		}
		return nil
	}

	for s.state.Target.Before(target) {
		if err := write(s.state.Remaining); err != nil {
			return ProgressView{}, err
		}
	}
	targetHP := max(0, min(hp, s.state.Remaining))
	if damage := s.state.Remaining - targetHP; damage > 0 {
		if err := write(damage); err != nil {
			return ProgressView{}, err
		}
	}

	if s.state.Target != start {
		call, err := m.queue.CallSubscribers(ctx, s.scope(), s.state.Target)
		if err != nil {
			return ProgressView{}, m.storeErr("call subscribers", &s.key, err)
		}
		m.announceCall(ctx, call)
	}
	m.log.Info("progress changed", zap.Stringer("from", start), zap.Stringer("to", s.state.Target), zap.Int64("remaining", s.state.Remaining))
	return m.view(ctx, s)
}
