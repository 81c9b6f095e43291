package manager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/clanbattle/battle"
)

// =============================================================================
// CLANS
// =============================================================================

func (m *Manager) newClan(name string, server battle.Server) (battle.Clan, error) {
	if !server.Valid() {
		return battle.Clan{}, fmt.Errorf("%w: %d", battle.ErrInvalidServer, server)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return battle.Clan{}, fmt.Errorf("%w: clan name is empty", battle.ErrInvalidArgument)
	}
	return battle.Clan{GroupID: m.groupID, ClanID: battle.DefaultClanID, Name: name, Server: server}, nil
}

// AddClan registers the group's clan.
func (m *Manager) AddClan(ctx context.Context, actor battle.Actor, name string, server battle.Server) (battle.Clan, error) {
	if err := requireAdmin(actor, "adding a clan"); err != nil {
		return battle.Clan{}, err
	}
	c, err := m.newClan(name, server)
	if err != nil {
		return battle.Clan{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deps.Store.AddClan(ctx, c); err != nil {
		return battle.Clan{}, m.storeErr("add clan", nil, err)
	}
	m.log.Info("clan added", zap.String("name", c.Name), zap.Stringer("server", c.Server))
	return c, nil
}

// ModifyClan renames the clan or moves it to another server.
func (m *Manager) ModifyClan(ctx context.Context, actor battle.Actor, name string, server battle.Server) (battle.Clan, error) {
	if err := requireAdmin(actor, "modifying the clan"); err != nil {
		return battle.Clan{}, err
	}
	c, err := m.newClan(name, server)
	if err != nil {
		return battle.Clan{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deps.Store.ModifyClan(ctx, c); err != nil {
		return battle.Clan{}, m.storeErr("modify clan", nil, err)
	}
	return c, nil
}

// SaveClan adds the clan, or modifies it when it already exists.
func (m *Manager) SaveClan(ctx context.Context, actor battle.Actor, name string, server battle.Server) (battle.Clan, bool, error) {
	if err := requireAdmin(actor, "setting up the clan"); err != nil {
		return battle.Clan{}, false, err
	}
	c, err := m.newClan(name, server)
	if err != nil {
		return battle.Clan{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err = m.deps.Store.AddClan(ctx, c)
	if errors.Is(err, battle.ErrClanExists) {
		if err := m.deps.Store.ModifyClan(ctx, c); err != nil {
			return battle.Clan{}, false, m.storeErr("modify clan", nil, err)
		}
		return c, false, nil
	}
	if err != nil {
		return battle.Clan{}, false, m.storeErr("add clan", nil, err)
	}
	return c, true, nil
}

func (m *Manager) FetchClan(ctx context.Context) (battle.Clan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clan(ctx)
}

func (m *Manager) ListClans(ctx context.Context) ([]battle.Clan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clans, err := m.deps.Store.ListClans(ctx, m.groupID)
	if err != nil {
		return nil, m.storeErr("list clans", nil, err)
	}
	return clans, nil
}

// RemoveClan deletes the clan. Its members and ledger stay in storage.
func (m *Manager) RemoveClan(ctx context.Context, actor battle.Actor) error {
	if err := requireAdmin(actor, "removing the clan"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deps.Store.RemoveClan(ctx, m.groupID, battle.DefaultClanID); err != nil {
		return m.storeErr("remove clan", nil, err)
	}
	m.log.Info("clan removed")
	return nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Manager) memberKey(userID int64) battle.MemberKey {
	return battle.MemberKey{UserID: userID, AltID: m.groupID}
}

// requireMember fails with ErrMemberNotFound when userID has not joined the
// clan. Callers hold m.mu.
func (m *Manager) requireMember(ctx context.Context, userID int64) error {
	_, err := m.deps.Store.GetMember(ctx, m.memberKey(userID))
	if errors.Is(err, battle.ErrMemberNotFound) {
		return battle.WithUsage(
			fmt.Errorf("%w: user %d", err, userID),
			"join the clan before queueing for a boss",
		)
	}
	return err
}

// resolveName falls back to the user id when no resolver is configured or
// the lookup fails.
func (m *Manager) resolveName(ctx context.Context, userID int64) string {
	if m.deps.Names != nil {
		name, err := m.deps.Names.ResolveName(ctx, m.groupID, userID)
		if err == nil && strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
		if err != nil {
			m.log.Warn("name lookup failed", zap.Int64("user", userID), zap.Error(err))
		}
	}
	return strconv.FormatInt(userID, 10)
}

// saveMember adds or modifies a member. The caller holds m.mu.
func (m *Manager) saveMember(ctx context.Context, userID int64, name string) (battle.Member, bool, error) {
	if userID <= 0 {
		return battle.Member{}, false, fmt.Errorf("%w: user id %d", battle.ErrInvalidArgument, userID)
	}
	if _, err := m.clan(ctx); err != nil {
		return battle.Member{}, false, err
	}
	if strings.TrimSpace(name) == "" {
		name = m.resolveName(ctx, userID)
	}
	mem := battle.Member{
		MemberKey: m.memberKey(userID),
		Name:      strings.TrimSpace(name),
		GroupID:   m.groupID,
		ClanID:    battle.DefaultClanID,
	}

	_, err := m.deps.Store.GetMember(ctx, mem.MemberKey)
	switch {
	case err == nil:
		if err := m.deps.Store.ModifyMember(ctx, mem); err != nil {
			return battle.Member{}, false, m.storeErr("modify member", nil, err)
		}
		return mem, false, nil
	case errors.Is(err, battle.ErrMemberNotFound):
		if err := m.deps.Store.AddMember(ctx, mem); err != nil {
			return battle.Member{}, false, m.storeErr("add member", nil, err)
		}
		return mem, true, nil
	default:
		return battle.Member{}, false, m.storeErr("get member", nil, err)
	}
}

// AddMember joins userID to the clan, or updates their name when they are
// already a member. A zero userID means the actor; adding someone else
// requires an admin. The second result is true when the member is new.
func (m *Manager) AddMember(ctx context.Context, actor battle.Actor, userID int64, name string) (battle.Member, bool, error) {
	if userID == 0 {
		userID = actor.UserID
	}
	if userID != actor.UserID {
		if err := requireAdmin(actor, "adding another member"); err != nil {
			return battle.Member{}, false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveMember(ctx, userID, name)
}

// ModifyMember renames an existing member.
func (m *Manager) ModifyMember(ctx context.Context, actor battle.Actor, userID int64, name string) (battle.Member, error) {
	if userID == 0 {
		userID = actor.UserID
	}
	key := m.memberKey(userID)
	if !actor.CanModify(key) {
		return battle.Member{}, fmt.Errorf("%w: only admins can rename other members", battle.ErrPermissionDenied)
	}
	if strings.TrimSpace(name) == "" {
		return battle.Member{}, fmt.Errorf("%w: member name is empty", battle.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mem, err := m.deps.Store.GetMember(ctx, key)
	if err != nil {
		return battle.Member{}, m.storeErr("get member", nil, err)
	}
	mem.Name = strings.TrimSpace(name)
	if err := m.deps.Store.ModifyMember(ctx, mem); err != nil {
		return battle.Member{}, m.storeErr("modify member", nil, err)
	}
	return mem, nil
}

// RemoveMember removes a member. Removing someone else requires an admin.
func (m *Manager) RemoveMember(ctx context.Context, actor battle.Actor, userID int64) error {
	if userID == 0 {
		userID = actor.UserID
	}
	key := m.memberKey(userID)
	if !actor.CanModify(key) {
		return fmt.Errorf("%w: only admins can remove other members", battle.ErrPermissionDenied)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deps.Store.RemoveMember(ctx, key); err != nil {
		return m.storeErr("remove member", nil, err)
	}
	return nil
}

func (m *Manager) FetchMember(ctx context.Context, userID int64) (battle.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, err := m.deps.Store.GetMember(ctx, m.memberKey(userID))
	if err != nil {
		return battle.Member{}, m.storeErr("get member", nil, err)
	}
	return mem, nil
}

func (m *Manager) ListMembers(ctx context.Context) ([]battle.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listMembers(ctx)
}

func (m *Manager) listMembers(ctx context.Context) ([]battle.Member, error) {
	members, err := m.deps.Store.ListMembers(ctx, m.groupID, battle.DefaultClanID)
	if err != nil {
		return nil, m.storeErr("list members", nil, err)
	}
	return members, nil
}

// ClearMembers removes every member of the clan and returns how many.
func (m *Manager) ClearMembers(ctx context.Context, actor battle.Actor) (int, error) {
	if err := requireAdmin(actor, "clearing members"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.deps.Store.RemoveMembers(ctx, m.groupID, battle.DefaultClanID)
	if err != nil {
		return 0, m.storeErr("remove members", nil, err)
	}
	m.log.Info("members cleared", zap.Int("count", n))
	return n, nil
}

// MemberInput is one row of a batch import.
type MemberInput struct {
	UserID int64
	Name   string
}

type BatchResult struct {
	Succeeded int
	Failed    int
}

// BatchAddMembers imports members one by one. A failed row does not undo
// the rows before it; the counts report what happened.
func (m *Manager) BatchAddMembers(ctx context.Context, actor battle.Actor, inputs []MemberInput) (BatchResult, error) {
	if err := requireAdmin(actor, "batch adding members"); err != nil {
		return BatchResult{}, err
	}
	if len(inputs) > m.deps.BatchLimit {
		return BatchResult{}, battle.WithUsage(
			fmt.Errorf("%w: %d members, limit %d", battle.ErrBatchTooLarge, len(inputs), m.deps.BatchLimit),
			"split the import into smaller batches",
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.clan(ctx); err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	for _, in := range inputs {
		if _, _, err := m.saveMember(ctx, in.UserID, in.Name); err != nil {
			m.log.Warn("batch member add failed", zap.Int64("user", in.UserID), zap.Error(err))
			res.Failed++
			continue
		}
		res.Succeeded++
	}
	return res, nil
}
