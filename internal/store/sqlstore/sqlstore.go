// Package sqlstore implements the record store on database/sql. The same
// queries serve SQLite and PostgreSQL; only placeholders differ.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/store"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DB is a Store over an open, migrated database.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps db. Schema migrations must already have run.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *DB) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const projectColumns = `id, name, start_date, end_date, budget_cents, advance_cents, expense_cents,
	balance_cents, is_settled, bill_submission_date, sop_roi_submission_date,
	bill_top_sheet, budget_copy, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (core.Project, error) {
	var (
		p                                 core.Project
		start, end, billDate, sopDate     sql.NullString
		billSheet, budgetCopy             sql.NullString
		createdAt                         string
		budget, advance, expense, balance int64
	)
	err := row.Scan(&p.ID, &p.Name, &start, &end, &budget, &advance, &expense,
		&balance, &p.IsSettled, &billDate, &sopDate, &billSheet, &budgetCopy, &createdAt)
	if err != nil {
		return core.Project{}, err
	}
	p.BudgetAmount = core.Money{Cents: budget}
	p.AdvanceAmount = core.Money{Cents: advance}
	p.ExpenseAmount = core.Money{Cents: expense}
	p.BalanceAmount = core.Money{Cents: balance}

	for _, f := range []struct {
		src sql.NullString
		dst *core.Date
	}{
		{start, &p.StartDate},
		{end, &p.EndDate},
		{billDate, &p.BillSubmissionDate},
		{sopDate, &p.SOPROIEmailSubmissionDate},
	} {
		d, err := core.ParseDate(f.src.String)
		if err != nil {
			return core.Project{}, fmt.Errorf("project %s: %w", p.ID, err)
		}
		*f.dst = d
	}

	if p.BillTopSheetImage, err = decodeAttachment(billSheet); err != nil {
		return core.Project{}, fmt.Errorf("project %s: %w", p.ID, err)
	}
	if p.BudgetCopyAttachment, err = decodeAttachment(budgetCopy); err != nil {
		return core.Project{}, fmt.Errorf("project %s: %w", p.ID, err)
	}
	if createdAt != "" {
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return core.Project{}, fmt.Errorf("project %s created_at: %w", p.ID, err)
		}
	}
	return p, nil
}

func nullDate(d core.Date) sql.NullString {
	return sql.NullString{String: d.String(), Valid: !d.IsEmpty()}
}

func encodeAttachment(a *core.Attachment) (sql.NullString, error) {
	if a == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeAttachment(v sql.NullString) (*core.Attachment, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var a core.Attachment
	if err := json.Unmarshal([]byte(v.String), &a); err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}
	return &a, nil
}

func (s *DB) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []core.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *DB) GetProject(ctx context.Context, id string) (core.Project, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Project{}, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Project{}, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

func (s *DB) UpsertProject(ctx context.Context, p core.Project) error {
	billSheet, err := encodeAttachment(p.BillTopSheetImage)
	if err != nil {
		return fmt.Errorf("encode bill top sheet: %w", err)
	}
	budgetCopy, err := encodeAttachment(p.BudgetCopyAttachment)
	if err != nil {
		return fmt.Errorf("encode budget copy: %w", err)
	}

	query := s.rebind(`INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			budget_cents = excluded.budget_cents,
			advance_cents = excluded.advance_cents,
			expense_cents = excluded.expense_cents,
			balance_cents = excluded.balance_cents,
			is_settled = excluded.is_settled,
			bill_submission_date = excluded.bill_submission_date,
			sop_roi_submission_date = excluded.sop_roi_submission_date,
			bill_top_sheet = excluded.bill_top_sheet,
			budget_copy = excluded.budget_copy,
			created_at = excluded.created_at`)

	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.Name, nullDate(p.StartDate), nullDate(p.EndDate),
		p.BudgetAmount.Cents, p.AdvanceAmount.Cents, p.ExpenseAmount.Cents, p.BalanceAmount.Cents,
		p.IsSettled, nullDate(p.BillSubmissionDate), nullDate(p.SOPROIEmailSubmissionDate),
		billSheet, budgetCopy, p.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	return nil
}

func (s *DB) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM projects WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

func (s *DB) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password, role FROM users ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.Username, &u.Password, &u.Role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *DB) SaveUser(ctx context.Context, u core.User) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO users (username_key, username, password, role)
		VALUES (?, ?, ?, ?) ON CONFLICT (username_key) DO NOTHING`),
		core.UsernameKey(u.Username), u.Username, u.Password, string(u.Role))
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.Username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.Username, err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", u.Username, store.ErrDuplicate)
	}
	return nil
}

func (s *DB) FindUserByUsername(ctx context.Context, username string) (core.User, error) {
	var u core.User
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT username, password, role FROM users WHERE username_key = ?`),
		core.UsernameKey(username)).Scan(&u.Username, &u.Password, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", username, store.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("find user %s: %w", username, err)
	}
	return u, nil
}

func (s *DB) PutSession(ctx context.Context, sess core.Session) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO sessions (id, username, role, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			role = excluded.role,
			issued_at = excluded.issued_at,
			expires_at = excluded.expires_at`),
		sess.ID, sess.Username, string(sess.Role), sess.IssuedAt.UnixNano(), sess.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *DB) GetSession(ctx context.Context, id string) (core.Session, error) {
	var (
		sess            core.Session
		issued, expires int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, username, role, issued_at, expires_at FROM sessions WHERE id = ?`), id).
		Scan(&sess.ID, &sess.Username, &sess.Role, &issued, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.IssuedAt = time.Unix(0, issued).UTC()
	sess.ExpiresAt = time.Unix(0, expires).UTC()
	return sess, nil
}

func (s *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *DB) PurgeSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(n), nil
}

func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Exec runs a raw statement, used by maintenance tooling and tests.
func (s *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}
