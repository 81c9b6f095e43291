// Package memstore provides an in-memory battle.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/clanbattle/battle"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	partitions map[battle.PartitionKey]*partition
	clans      map[clanKey]battle.Clan
	members    map[battle.MemberKey]battle.Member
}

type clanKey struct {
	GroupID int64
	ClanID  int64
}

type partition struct {
	runs      []battle.RunRecord
	nextRun   battle.RunID
	entries   []battle.Entry
	nextEntry battle.EntryID
}

func New() *Memory {
	return &Memory{
		partitions: make(map[battle.PartitionKey]*partition),
		clans:      make(map[clanKey]battle.Clan),
		members:    make(map[battle.MemberKey]battle.Member),
	}
}

// partitionLocked returns the partition for key, creating it when create is set.
func (m *Memory) partitionLocked(key battle.PartitionKey, create bool) *partition {
	p, ok := m.partitions[key]
	if !ok && create {
		p = &partition{}
		m.partitions[key] = p
	}
	return p
}

// =============================================================================
// RUN RECORDS
// =============================================================================

func (m *Memory) AppendRun(_ context.Context, key battle.PartitionKey, rec battle.RunRecord) (battle.RunID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.partitionLocked(key, true)
	p.nextRun++
	rec.ID = p.nextRun
	p.runs = append(p.runs, rec)
	return rec.ID, nil
}

func (m *Memory) GetRun(_ context.Context, key battle.PartitionKey, id battle.RunID) (battle.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p := m.partitionLocked(key, false); p != nil {
		for _, r := range p.runs {
			if r.ID == id {
				return r, nil
			}
		}
	}
	return battle.RunRecord{}, battle.ErrRecordNotFound
}

func (m *Memory) ListRuns(_ context.Context, key battle.PartitionKey) ([]battle.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedRunsLocked(key, nil), nil
}

func (m *Memory) ListRunsByMember(_ context.Context, key battle.PartitionKey, member battle.MemberKey) ([]battle.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedRunsLocked(key, &member), nil
}

func (m *Memory) sortedRunsLocked(key battle.PartitionKey, member *battle.MemberKey) []battle.RunRecord {
	p := m.partitionLocked(key, false)
	if p == nil {
		return nil
	}
	var out []battle.RunRecord
	for _, r := range p.runs {
		if member == nil || r.Member == *member {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Target.Round != b.Target.Round {
			return a.Target.Round < b.Target.Round
		}
		if a.Target.Boss != b.Target.Boss {
			return a.Target.Boss < b.Target.Boss
		}
		return a.ID < b.ID
	})
	return out
}

func (m *Memory) UpdateRun(_ context.Context, key battle.PartitionKey, rec battle.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.partitionLocked(key, false); p != nil {
		for i := range p.runs {
			if p.runs[i].ID == rec.ID {
				p.runs[i] = rec
				return nil
			}
		}
	}
	return battle.ErrRecordNotFound
}

func (m *Memory) DeleteRun(_ context.Context, key battle.PartitionKey, id battle.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.partitionLocked(key, false); p != nil {
		for i := range p.runs {
			if p.runs[i].ID == id {
				p.runs = append(p.runs[:i], p.runs[i+1:]...)
				return nil
			}
		}
	}
	return battle.ErrRecordNotFound
}

// =============================================================================
// SUBSCRIPTION ENTRIES
// =============================================================================

func (m *Memory) AppendEntry(ctx context.Context, key battle.PartitionKey, e battle.Entry) (battle.EntryID, error) {
	ids, err := m.AppendEntries(ctx, key, []battle.Entry{e})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AppendEntries cannot fail halfway in memory, so the batch is atomic.
func (m *Memory) AppendEntries(_ context.Context, key battle.PartitionKey, es []battle.Entry) ([]battle.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.partitionLocked(key, true)
	ids := make([]battle.EntryID, len(es))
	for i, e := range es {
		p.nextEntry++
		e.ID = p.nextEntry
		p.entries = append(p.entries, e)
		ids[i] = e.ID
	}
	return ids, nil
}

func (m *Memory) GetEntry(_ context.Context, key battle.PartitionKey, id battle.EntryID) (battle.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p := m.partitionLocked(key, false); p != nil {
		for _, e := range p.entries {
			if e.ID == id {
				return e, nil
			}
		}
	}
	return battle.Entry{}, battle.ErrEntryNotFound
}

func (m *Memory) ListEntries(_ context.Context, key battle.PartitionKey) ([]battle.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := m.partitionLocked(key, false)
	if p == nil {
		return nil, nil
	}
	return append([]battle.Entry(nil), p.entries...), nil
}

func (m *Memory) ListEntriesByMember(_ context.Context, key battle.PartitionKey, member battle.MemberKey) ([]battle.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := m.partitionLocked(key, false)
	if p == nil {
		return nil, nil
	}
	var out []battle.Entry
	for _, e := range p.entries {
		if e.Member == member {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) UpdateEntry(ctx context.Context, key battle.PartitionKey, e battle.Entry) error {
	return m.UpdateEntries(ctx, key, []battle.Entry{e})
}

// UpdateEntries validates every id before writing any of them.
func (m *Memory) UpdateEntries(_ context.Context, key battle.PartitionKey, es []battle.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.partitionLocked(key, false)
	if p == nil {
		return battle.ErrEntryNotFound
	}
	index := make(map[battle.EntryID]int, len(p.entries))
	for i, e := range p.entries {
		index[e.ID] = i
	}
	for _, e := range es {
		if _, ok := index[e.ID]; !ok {
			return battle.ErrEntryNotFound
		}
	}
	for _, e := range es {
		p.entries[index[e.ID]] = e
	}
	return nil
}

// =============================================================================
// CLANS
// =============================================================================

func (m *Memory) AddClan(_ context.Context, c battle.Clan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := clanKey{c.GroupID, c.ClanID}
	if _, ok := m.clans[k]; ok {
		return battle.ErrClanExists
	}
	m.clans[k] = c
	return nil
}

func (m *Memory) ModifyClan(_ context.Context, c battle.Clan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := clanKey{c.GroupID, c.ClanID}
	if _, ok := m.clans[k]; !ok {
		return battle.ErrClanNotFound
	}
	m.clans[k] = c
	return nil
}

func (m *Memory) RemoveClan(_ context.Context, groupID, clanID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := clanKey{groupID, clanID}
	if _, ok := m.clans[k]; !ok {
		return battle.ErrClanNotFound
	}
	delete(m.clans, k)
	return nil
}

func (m *Memory) GetClan(_ context.Context, groupID, clanID int64) (battle.Clan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clans[clanKey{groupID, clanID}]
	if !ok {
		return battle.Clan{}, battle.ErrClanNotFound
	}
	return c, nil
}

func (m *Memory) ListClans(_ context.Context, groupID int64) ([]battle.Clan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []battle.Clan
	for _, c := range m.clans {
		if c.GroupID == groupID {
			out = append(out, c)
		}
	}
	sortClans(out)
	return out, nil
}

func (m *Memory) ListAllClans(_ context.Context) ([]battle.Clan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]battle.Clan, 0, len(m.clans))
	for _, c := range m.clans {
		out = append(out, c)
	}
	sortClans(out)
	return out, nil
}

func sortClans(cs []battle.Clan) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].GroupID != cs[j].GroupID {
			return cs[i].GroupID < cs[j].GroupID
		}
		return cs[i].ClanID < cs[j].ClanID
	})
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Memory) AddMember(_ context.Context, mem battle.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[mem.MemberKey]; ok {
		return battle.ErrMemberExists
	}
	m.members[mem.MemberKey] = mem
	return nil
}

func (m *Memory) ModifyMember(_ context.Context, mem battle.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[mem.MemberKey]; !ok {
		return battle.ErrMemberNotFound
	}
	m.members[mem.MemberKey] = mem
	return nil
}

func (m *Memory) RemoveMember(_ context.Context, key battle.MemberKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[key]; !ok {
		return battle.ErrMemberNotFound
	}
	delete(m.members, key)
	return nil
}

func (m *Memory) GetMember(_ context.Context, key battle.MemberKey) (battle.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mem, ok := m.members[key]
	if !ok {
		return battle.Member{}, battle.ErrMemberNotFound
	}
	return mem, nil
}

func (m *Memory) ListMembers(_ context.Context, groupID, clanID int64) ([]battle.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []battle.Member
	for _, mem := range m.members {
		if mem.GroupID == groupID && (clanID == 0 || mem.ClanID == clanID) {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].AltID < out[j].AltID
	})
	return out, nil
}

func (m *Memory) RemoveMembers(_ context.Context, groupID, clanID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, mem := range m.members {
		if mem.GroupID == groupID && (clanID == 0 || mem.ClanID == clanID) {
			delete(m.members, k)
			n++
		}
	}
	return n, nil
}

var _ battle.Store = (*Memory)(nil)
