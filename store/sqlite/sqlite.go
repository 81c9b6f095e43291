/*
Package sqlite provides a SQLite-backed implementation of battle.Store.

PURPOSE:
  Persists clans, members, run records and subscription entries. Run
  records and subscription entries are partitioned into one table pair per
  (group, clan, clan month), created lazily by the first write.

KEY TABLES:
  clans:                         One row per (gid, cid)
  members:                       One row per (uid, alt)
  clanbattle_{g}_{c}_{YYYYMM}:   Run records of one partition
  subscribe_{g}_{c}_{YYYYMM}:    Subscription entries of one partition

MISSING PARTITIONS:
  Reading a partition that was never written returns an empty result.
  The first write issues CREATE TABLE IF NOT EXISTS for both tables.

ORDERING:
  Run records are read ORDER BY round, boss, rid. Progress derivation
  depends on it.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.
  ":memory:" databases are pinned to a single connection so every caller
  sees the same database.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

ERRORS:
  Engine faults are wrapped in battle.StorageError. Absent rows map to the
  specific battle not-found sentinels, primary key conflicts on clans and
  members to ErrClanExists / ErrMemberExists.

USAGE:
  store, err := sqlite.New("./data/clanbattle.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - battle/store.go: Interface definitions
  - battle/memstore/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/clanbattle/battle"
)

// Store implements battle.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// partitions whose tables are known to exist
	created map[battle.PartitionKey]bool
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, created: make(map[battle.PartitionKey]bool)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the directory tables. Partition tables are created on demand.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clans (
		gid INTEGER NOT NULL,
		cid INTEGER NOT NULL,
		name TEXT NOT NULL,
		server INTEGER NOT NULL,
		PRIMARY KEY (gid, cid)
	);

	CREATE TABLE IF NOT EXISTS members (
		uid INTEGER NOT NULL,
		alt INTEGER NOT NULL,
		name TEXT NOT NULL,
		gid INTEGER NOT NULL,
		cid INTEGER NOT NULL,
		PRIMARY KEY (uid, alt)
	);

	CREATE INDEX IF NOT EXISTS idx_members_group
		ON members(gid, cid);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ensurePartition creates the run and subscription tables of key.
// Caller must hold s.mu for writing.
func (s *Store) ensurePartition(ctx context.Context, db execer, key battle.PartitionKey) error {
	if s.created[key] {
		return nil
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %q (
		rid INTEGER PRIMARY KEY AUTOINCREMENT,
		uid INTEGER NOT NULL,
		alt INTEGER NOT NULL,
		time TEXT NOT NULL,
		round INTEGER NOT NULL,
		boss INTEGER NOT NULL,
		dmg INTEGER NOT NULL,
		flag INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS %q ON %q(round, boss, rid);

	CREATE TABLE IF NOT EXISTS %q (
		sid INTEGER PRIMARY KEY AUTOINCREMENT,
		uid INTEGER NOT NULL,
		alt INTEGER NOT NULL,
		time TEXT NOT NULL,
		round INTEGER NOT NULL,
		boss INTEGER NOT NULL,
		flag INTEGER NOT NULL,
		msg TEXT NOT NULL DEFAULT ''
	);
	`,
		key.RunTable(),
		"idx_"+key.RunTable()+"_order", key.RunTable(),
		key.SubscribeTable(),
	)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}
	s.created[key] = true
	return nil
}

// =============================================================================
// RUN STORE (battle.RunStore interface)
// =============================================================================

const runColumns = "rid, uid, alt, time, round, boss, dmg, flag"

// AppendRun inserts a record and returns its partition-local id.
func (s *Store) AppendRun(ctx context.Context, key battle.PartitionKey, rec battle.RunRecord) (battle.RunID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensurePartition(ctx, s.db, key); err != nil {
		return 0, battle.NewStorageError("append run", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %q (uid, alt, time, round, boss, dmg, flag)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.RunTable())

	res, err := s.db.ExecContext(ctx, query,
		rec.Member.UserID, rec.Member.AltID,
		formatTime(rec.SubmittedAt),
		rec.Target.Round, rec.Target.Boss,
		rec.Damage, int(rec.Flag),
	)
	if err != nil {
		return 0, battle.NewStorageError("append run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, battle.NewStorageError("append run", err)
	}
	return battle.RunID(id), nil
}

func (s *Store) GetRun(ctx context.Context, key battle.PartitionKey, id battle.RunID) (battle.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM %q WHERE rid = ?", runColumns, key.RunTable())
	runs, err := s.queryRuns(ctx, query, int64(id))
	if err != nil {
		return battle.RunRecord{}, battle.NewStorageError("get run", err)
	}
	if len(runs) == 0 {
		return battle.RunRecord{}, battle.ErrRecordNotFound
	}
	return runs[0], nil
}

// ListRuns returns all records of the partition ordered by (round, boss, rid).
func (s *Store) ListRuns(ctx context.Context, key battle.PartitionKey) ([]battle.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM %q ORDER BY round, boss, rid", runColumns, key.RunTable())
	runs, err := s.queryRuns(ctx, query)
	if err != nil {
		return nil, battle.NewStorageError("list runs", err)
	}
	return runs, nil
}

func (s *Store) ListRunsByMember(ctx context.Context, key battle.PartitionKey, member battle.MemberKey) ([]battle.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT %s FROM %q WHERE uid = ? AND alt = ? ORDER BY round, boss, rid",
		runColumns, key.RunTable(),
	)
	runs, err := s.queryRuns(ctx, query, member.UserID, member.AltID)
	if err != nil {
		return nil, battle.NewStorageError("list runs by member", err)
	}
	return runs, nil
}

func (s *Store) UpdateRun(ctx context.Context, key battle.PartitionKey, rec battle.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`
		UPDATE %q SET uid = ?, alt = ?, time = ?, round = ?, boss = ?, dmg = ?, flag = ?
		WHERE rid = ?
	`, key.RunTable())

	res, err := s.db.ExecContext(ctx, query,
		rec.Member.UserID, rec.Member.AltID,
		formatTime(rec.SubmittedAt),
		rec.Target.Round, rec.Target.Boss,
		rec.Damage, int(rec.Flag),
		int64(rec.ID),
	)
	return affectedOne(res, err, "update run", battle.ErrRecordNotFound)
}

func (s *Store) DeleteRun(ctx context.Context, key battle.PartitionKey, id battle.RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %q WHERE rid = ?", key.RunTable()), int64(id))
	return affectedOne(res, err, "delete run", battle.ErrRecordNotFound)
}

// queryRuns treats a missing partition table as an empty partition.
func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]battle.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if isNoSuchTableError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []battle.RunRecord
	for rows.Next() {
		var (
			rec       battle.RunRecord
			submitted string
			flag      int
		)
		if err := rows.Scan(
			&rec.ID, &rec.Member.UserID, &rec.Member.AltID, &submitted,
			&rec.Target.Round, &rec.Target.Boss, &rec.Damage, &flag,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		if rec.SubmittedAt, err = parseTime(submitted); err != nil {
			return nil, fmt.Errorf("run %d: %w", rec.ID, err)
		}
		rec.Flag = battle.RecordFlag(flag)
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// =============================================================================
// SUBSCRIPTION STORE (battle.SubscriptionStore interface)
// =============================================================================

const entryColumns = "sid, uid, alt, time, round, boss, flag, msg"

func (s *Store) AppendEntry(ctx context.Context, key battle.PartitionKey, e battle.Entry) (battle.EntryID, error) {
	ids, err := s.AppendEntries(ctx, key, []battle.Entry{e})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AppendEntries inserts all entries in one transaction.
func (s *Store) AppendEntries(ctx context.Context, key battle.PartitionKey, es []battle.Entry) ([]battle.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensurePartition(ctx, s.db, key); err != nil {
		return nil, battle.NewStorageError("append entries", err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, battle.NewStorageError("append entries", err)
	}
	defer sqlTx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %q (uid, alt, time, round, boss, flag, msg)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.SubscribeTable())

	ids := make([]battle.EntryID, 0, len(es))
	for _, e := range es {
		res, err := sqlTx.ExecContext(ctx, query,
			e.Member.UserID, e.Member.AltID,
			formatTime(e.SubmittedAt),
			e.Target.Round, e.Target.Boss,
			int(e.Flag), e.Message,
		)
		if err != nil {
			return nil, battle.NewStorageError("append entries", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, battle.NewStorageError("append entries", err)
		}
		ids = append(ids, battle.EntryID(id))
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, battle.NewStorageError("append entries", err)
	}
	return ids, nil
}

func (s *Store) GetEntry(ctx context.Context, key battle.PartitionKey, id battle.EntryID) (battle.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM %q WHERE sid = ?", entryColumns, key.SubscribeTable())
	entries, err := s.queryEntries(ctx, query, int64(id))
	if err != nil {
		return battle.Entry{}, battle.NewStorageError("get entry", err)
	}
	if len(entries) == 0 {
		return battle.Entry{}, battle.ErrEntryNotFound
	}
	return entries[0], nil
}

func (s *Store) ListEntries(ctx context.Context, key battle.PartitionKey) ([]battle.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT %s FROM %q ORDER BY sid", entryColumns, key.SubscribeTable())
	entries, err := s.queryEntries(ctx, query)
	if err != nil {
		return nil, battle.NewStorageError("list entries", err)
	}
	return entries, nil
}

func (s *Store) ListEntriesByMember(ctx context.Context, key battle.PartitionKey, member battle.MemberKey) ([]battle.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT %s FROM %q WHERE uid = ? AND alt = ? ORDER BY sid",
		entryColumns, key.SubscribeTable(),
	)
	entries, err := s.queryEntries(ctx, query, member.UserID, member.AltID)
	if err != nil {
		return nil, battle.NewStorageError("list entries by member", err)
	}
	return entries, nil
}

func (s *Store) UpdateEntry(ctx context.Context, key battle.PartitionKey, e battle.Entry) error {
	return s.UpdateEntries(ctx, key, []battle.Entry{e})
}

// UpdateEntries rewrites all entries in one transaction. A missing id
// rolls the whole batch back.
func (s *Store) UpdateEntries(ctx context.Context, key battle.PartitionKey, es []battle.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return battle.NewStorageError("update entries", err)
	}
	defer sqlTx.Rollback()

	query := fmt.Sprintf(`
		UPDATE %q SET uid = ?, alt = ?, time = ?, round = ?, boss = ?, flag = ?, msg = ?
		WHERE sid = ?
	`, key.SubscribeTable())

	for _, e := range es {
		res, err := sqlTx.ExecContext(ctx, query,
			e.Member.UserID, e.Member.AltID,
			formatTime(e.SubmittedAt),
			e.Target.Round, e.Target.Boss,
			int(e.Flag), e.Message,
			int64(e.ID),
		)
		if err := affectedOne(res, err, "update entries", battle.ErrEntryNotFound); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return battle.NewStorageError("update entries", err)
	}
	return nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]battle.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if isNoSuchTableError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []battle.Entry
	for rows.Next() {
		var (
			e         battle.Entry
			submitted string
			flag      int
		)
		if err := rows.Scan(
			&e.ID, &e.Member.UserID, &e.Member.AltID, &submitted,
			&e.Target.Round, &e.Target.Boss, &flag, &e.Message,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if e.SubmittedAt, err = parseTime(submitted); err != nil {
			return nil, fmt.Errorf("subscription %d: %w", e.ID, err)
		}
		e.Flag = battle.EntryFlag(flag)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// CLAN STORE (battle.ClanStore interface)
// =============================================================================

func (s *Store) AddClan(ctx context.Context, c battle.Clan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO clans (gid, cid, name, server) VALUES (?, ?, ?, ?)",
		c.GroupID, c.ClanID, c.Name, int(c.Server),
	)
	if isUniqueConstraintError(err) {
		return battle.ErrClanExists
	}
	return battle.NewStorageError("add clan", err)
}

func (s *Store) ModifyClan(ctx context.Context, c battle.Clan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE clans SET name = ?, server = ? WHERE gid = ? AND cid = ?",
		c.Name, int(c.Server), c.GroupID, c.ClanID,
	)
	return affectedOne(res, err, "modify clan", battle.ErrClanNotFound)
}

func (s *Store) RemoveClan(ctx context.Context, groupID, clanID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM clans WHERE gid = ? AND cid = ?", groupID, clanID)
	return affectedOne(res, err, "remove clan", battle.ErrClanNotFound)
}

func (s *Store) GetClan(ctx context.Context, groupID, clanID int64) (battle.Clan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c      battle.Clan
		server int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT gid, cid, name, server FROM clans WHERE gid = ? AND cid = ?",
		groupID, clanID,
	).Scan(&c.GroupID, &c.ClanID, &c.Name, &server)

	if errors.Is(err, sql.ErrNoRows) {
		return battle.Clan{}, battle.ErrClanNotFound
	}
	if err != nil {
		return battle.Clan{}, battle.NewStorageError("get clan", err)
	}
	c.Server = battle.Server(server)
	return c, nil
}

func (s *Store) ListClans(ctx context.Context, groupID int64) ([]battle.Clan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clans, err := s.queryClans(ctx,
		"SELECT gid, cid, name, server FROM clans WHERE gid = ? ORDER BY cid", groupID)
	return clans, battle.NewStorageError("list clans", err)
}

func (s *Store) ListAllClans(ctx context.Context) ([]battle.Clan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clans, err := s.queryClans(ctx,
		"SELECT gid, cid, name, server FROM clans ORDER BY gid, cid")
	return clans, battle.NewStorageError("list all clans", err)
}

func (s *Store) queryClans(ctx context.Context, query string, args ...any) ([]battle.Clan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clans []battle.Clan
	for rows.Next() {
		var (
			c      battle.Clan
			server int
		)
		if err := rows.Scan(&c.GroupID, &c.ClanID, &c.Name, &server); err != nil {
			return nil, err
		}
		c.Server = battle.Server(server)
		clans = append(clans, c)
	}
	return clans, rows.Err()
}

// =============================================================================
// MEMBER STORE (battle.MemberStore interface)
// =============================================================================

func (s *Store) AddMember(ctx context.Context, m battle.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO members (uid, alt, name, gid, cid) VALUES (?, ?, ?, ?, ?)",
		m.UserID, m.AltID, m.Name, m.GroupID, m.ClanID,
	)
	if isUniqueConstraintError(err) {
		return battle.ErrMemberExists
	}
	return battle.NewStorageError("add member", err)
}

func (s *Store) ModifyMember(ctx context.Context, m battle.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE members SET name = ?, gid = ?, cid = ? WHERE uid = ? AND alt = ?",
		m.Name, m.GroupID, m.ClanID, m.UserID, m.AltID,
	)
	return affectedOne(res, err, "modify member", battle.ErrMemberNotFound)
}

func (s *Store) RemoveMember(ctx context.Context, key battle.MemberKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM members WHERE uid = ? AND alt = ?", key.UserID, key.AltID)
	return affectedOne(res, err, "remove member", battle.ErrMemberNotFound)
}

func (s *Store) GetMember(ctx context.Context, key battle.MemberKey) (battle.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m battle.Member
	err := s.db.QueryRowContext(ctx,
		"SELECT uid, alt, name, gid, cid FROM members WHERE uid = ? AND alt = ?",
		key.UserID, key.AltID,
	).Scan(&m.UserID, &m.AltID, &m.Name, &m.GroupID, &m.ClanID)

	if errors.Is(err, sql.ErrNoRows) {
		return battle.Member{}, battle.ErrMemberNotFound
	}
	if err != nil {
		return battle.Member{}, battle.NewStorageError("get member", err)
	}
	return m, nil
}

// ListMembers filters by group and, when clanID is non-zero, by clan.
func (s *Store) ListMembers(ctx context.Context, groupID, clanID int64) ([]battle.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT uid, alt, name, gid, cid FROM members WHERE gid = ?"
	args := []any{groupID}
	if clanID != 0 {
		query += " AND cid = ?"
		args = append(args, clanID)
	}
	query += " ORDER BY uid, alt"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, battle.NewStorageError("list members", err)
	}
	defer rows.Close()

	var members []battle.Member
	for rows.Next() {
		var m battle.Member
		if err := rows.Scan(&m.UserID, &m.AltID, &m.Name, &m.GroupID, &m.ClanID); err != nil {
			return nil, battle.NewStorageError("list members", err)
		}
		members = append(members, m)
	}
	return members, battle.NewStorageError("list members", rows.Err())
}

func (s *Store) RemoveMembers(ctx context.Context, groupID, clanID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "DELETE FROM members WHERE gid = ?"
	args := []any{groupID}
	if clanID != 0 {
		query += " AND cid = ?"
		args = append(args, clanID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, battle.NewStorageError("remove members", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, battle.NewStorageError("remove members", err)
	}
	return int(n), nil
}

var _ battle.Store = (*Store)(nil)

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}

// affectedOne maps a zero-row write onto notFound.
func affectedOne(res sql.Result, err error, op string, notFound error) error {
	if isNoSuchTableError(err) {
		return notFound
	}
	if err != nil {
		return battle.NewStorageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return battle.NewStorageError(op, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}

func isNoSuchTableError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
