package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crm-cli/internal/model"
	"github.com/sells-group/crm-cli/internal/stage"
)

// sqlQuerier is the query surface shared by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	q  sqlQuerier
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

// sqliteMigration mirrors migrations/001_crm.sql. The stage CHECK constraint
// stands in for the Postgres deal_stage enum.
func sqliteMigration() string {
	quoted := make([]string, len(stage.All))
	for i, s := range stage.All {
		quoted[i] = "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS pipelines (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	stages     TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS companies (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	timezone   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id INTEGER REFERENCES companies(id) ON DELETE SET NULL,
	first_name TEXT,
	last_name  TEXT,
	email      TEXT,
	phone      TEXT,
	timezone   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deals (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL,
	company_id         INTEGER REFERENCES companies(id) ON DELETE SET NULL,
	primary_contact_id INTEGER REFERENCES contacts(id) ON DELETE SET NULL,
	pipeline_id        INTEGER NOT NULL REFERENCES pipelines(id),
	stage              TEXT NOT NULL DEFAULT 'not contacted' CHECK (stage IN (%s)),
	timezone           TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS notes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	deal_id    INTEGER NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
	contact_id INTEGER REFERENCES contacts(id) ON DELETE SET NULL,
	company_id INTEGER REFERENCES companies(id) ON DELETE SET NULL,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_companies_lower_name ON companies (lower(name));
CREATE INDEX IF NOT EXISTS idx_contacts_lower_email ON contacts (lower(email));
CREATE INDEX IF NOT EXISTS idx_deals_pipeline_id ON deals (pipeline_id);
CREATE INDEX IF NOT EXISTS idx_notes_deal_id ON notes (deal_id);
`, strings.Join(quoted, ", "))
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration())
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside one transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&SQLiteStore{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit tx")
	}
	return nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	return s.queryCompanies(ctx, `SELECT id, name, COALESCE(timezone, ''), created_at FROM companies ORDER BY id`)
}

func (s *SQLiteStore) ListContacts(ctx context.Context) ([]model.Contact, error) {
	return s.queryContacts(ctx, `SELECT `+sqliteContactColumns+` FROM contacts ORDER BY id`)
}

func (s *SQLiteStore) GetPipeline(ctx context.Context, id int64) (*model.Pipeline, error) {
	var p model.Pipeline
	var stages string
	err := s.q.QueryRowContext(ctx, `SELECT id, name, stages, created_at FROM pipelines WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &stages, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get pipeline %d", id)
	}
	if err := json.Unmarshal([]byte(stages), &p.Stages); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode stages for pipeline %d", id)
	}
	return &p, nil
}

func (s *SQLiteStore) ListPipelines(ctx context.Context) ([]model.Pipeline, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, stages, created_at FROM pipelines ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pipelines")
	}
	defer rows.Close()

	var out []model.Pipeline
	for rows.Next() {
		var p model.Pipeline
		var stages string
		if err := rows.Scan(&p.ID, &p.Name, &stages, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pipeline")
		}
		if err := json.Unmarshal([]byte(stages), &p.Stages); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode stages for pipeline %d", p.ID)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreatePipeline(ctx context.Context, p *model.Pipeline) error {
	stages := p.Stages
	if stages == nil {
		stages = []string{}
	}
	data, err := json.Marshal(stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode stages")
	}
	p.CreatedAt = time.Now().UTC()
	err = s.q.QueryRowContext(ctx,
		`INSERT INTO pipelines (name, stages, created_at) VALUES (?, ?, ?) RETURNING id`,
		p.Name, string(data), p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return eris.Wrap(err, "sqlite: create pipeline")
	}
	return nil
}

func (s *SQLiteStore) FindCompaniesByName(ctx context.Context, names []string) ([]model.Company, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ph, args := placeholders(lowerAll(names))
	return s.queryCompanies(ctx,
		`SELECT id, name, COALESCE(timezone, ''), created_at FROM companies WHERE lower(name) IN (`+ph+`) ORDER BY id`,
		args...)
}

func (s *SQLiteStore) FindContactsByEmail(ctx context.Context, emails []string) ([]model.Contact, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	ph, args := placeholders(lowerAll(emails))
	return s.queryContacts(ctx,
		`SELECT `+sqliteContactColumns+` FROM contacts WHERE lower(email) IN (`+ph+`) ORDER BY id`,
		args...)
}

func (s *SQLiteStore) FindContactByNamePhone(ctx context.Context, first, last, phone string) (*model.Contact, error) {
	found, err := s.queryContacts(ctx, `
		SELECT `+sqliteContactColumns+` FROM contacts
		WHERE COALESCE(first_name, '') = ? AND COALESCE(last_name, '') = ? AND COALESCE(phone, '') = ?
		ORDER BY id LIMIT 1`,
		first, last, phone)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (s *SQLiteStore) InsertCompanies(ctx context.Context, companies []model.Company) ([]model.Company, error) {
	out := make([]model.Company, 0, len(companies))
	for _, c := range companies {
		c.CreatedAt = time.Now().UTC()
		err := s.q.QueryRowContext(ctx,
			`INSERT INTO companies (name, timezone, created_at) VALUES (?, ?, ?) RETURNING id`,
			c.Name, nullIfEmpty(c.Timezone), c.CreatedAt,
		).Scan(&c.ID)
		if err != nil {
			return out, eris.Wrapf(err, "sqlite: insert company %q", c.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLiteStore) InsertContacts(ctx context.Context, contacts []model.Contact) ([]model.Contact, error) {
	out := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		c.CreatedAt = time.Now().UTC()
		err := s.q.QueryRowContext(ctx, `
			INSERT INTO contacts (company_id, first_name, last_name, email, phone, timezone, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			c.CompanyID, nullIfEmpty(c.FirstName), nullIfEmpty(c.LastName),
			nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Timezone), c.CreatedAt,
		).Scan(&c.ID)
		if err != nil {
			return out, eris.Wrapf(err, "sqlite: insert contact %q", c.FullName())
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLiteStore) InsertDeals(ctx context.Context, deals []model.Deal) ([]model.Deal, error) {
	out := make([]model.Deal, 0, len(deals))
	for _, d := range deals {
		d.CreatedAt = time.Now().UTC()
		err := s.q.QueryRowContext(ctx, `
			INSERT INTO deals (name, company_id, primary_contact_id, pipeline_id, stage, timezone, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			d.Name, d.CompanyID, d.PrimaryContactID, d.PipelineID, d.Stage, nullIfEmpty(d.Timezone), d.CreatedAt,
		).Scan(&d.ID)
		if err != nil {
			return out, eris.Wrapf(err, "sqlite: insert deal %q", d.Name)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *SQLiteStore) InsertNotes(ctx context.Context, notes []model.Note) (int, error) {
	n := 0
	for _, note := range notes {
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO notes (deal_id, contact_id, company_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
			note.DealID, note.ContactID, note.CompanyID, note.Body, time.Now().UTC(),
		); err != nil {
			return n, eris.Wrapf(err, "sqlite: insert note for deal %d", note.DealID)
		}
		n++
	}
	return n, nil
}

const sqliteContactColumns = `id, company_id, COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(email, ''), COALESCE(phone, ''), COALESCE(timezone, ''), created_at`

func (s *SQLiteStore) queryCompanies(ctx context.Context, query string, args ...any) ([]model.Company, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Timezone, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) queryContacts(ctx context.Context, query string, args ...any) ([]model.Contact, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		var companyID sql.NullInt64
		if err := rows.Scan(&c.ID, &companyID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Timezone, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		if companyID.Valid {
			id := companyID.Int64
			c.CompanyID = &id
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func placeholders(values []string) (string, []any) {
	ph := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		ph[i] = "?"
		args[i] = v
	}
	return strings.Join(ph, ", "), args
}

var (
	_ TxStore = (*SQLiteStore)(nil)
	_ TxStore = (*PostgresStore)(nil)
)
