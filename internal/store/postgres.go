package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-cli/internal/db"
	"github.com/sells-group/crm-cli/internal/model"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	q       db.Querier
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, q: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns the pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

// Close releases the pool if this store created it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithTx runs fn inside one transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{pool: s.pool, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := s.q.Query(ctx, `SELECT id, name, COALESCE(timezone, ''), created_at FROM companies ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()
	return collect(rows, scanCompany, "postgres: scan company")
}

func (s *PostgresStore) ListContacts(ctx context.Context) ([]model.Contact, error) {
	rows, err := s.q.Query(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()
	return collect(rows, scanContact, "postgres: scan contact")
}

func (s *PostgresStore) GetPipeline(ctx context.Context, id int64) (*model.Pipeline, error) {
	p := &model.Pipeline{}
	err := s.q.QueryRow(ctx, `SELECT id, name, stages, created_at FROM pipelines WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Stages, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get pipeline %d", id)
	}
	return p, nil
}

func (s *PostgresStore) ListPipelines(ctx context.Context) ([]model.Pipeline, error) {
	rows, err := s.q.Query(ctx, `SELECT id, name, stages, created_at FROM pipelines ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pipelines")
	}
	defer rows.Close()
	return collect(rows, func(r pgx.Rows) (model.Pipeline, error) {
		var p model.Pipeline
		err := r.Scan(&p.ID, &p.Name, &p.Stages, &p.CreatedAt)
		return p, err
	}, "postgres: scan pipeline")
}

func (s *PostgresStore) CreatePipeline(ctx context.Context, p *model.Pipeline) error {
	stages := p.Stages
	if stages == nil {
		stages = []string{}
	}
	err := s.q.QueryRow(ctx,
		`INSERT INTO pipelines (name, stages) VALUES ($1, $2) RETURNING id, created_at`,
		p.Name, stages,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: create pipeline")
	}
	return nil
}

func (s *PostgresStore) FindCompaniesByName(ctx context.Context, names []string) ([]model.Company, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx,
		`SELECT id, name, COALESCE(timezone, ''), created_at FROM companies WHERE lower(name) = ANY($1) ORDER BY id`,
		lowerAll(names))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find companies by name")
	}
	defer rows.Close()
	return collect(rows, scanCompany, "postgres: scan company")
}

func (s *PostgresStore) FindContactsByEmail(ctx context.Context, emails []string) ([]model.Contact, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE lower(email) = ANY($1) ORDER BY id`,
		lowerAll(emails))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find contacts by email")
	}
	defer rows.Close()
	return collect(rows, scanContact, "postgres: scan contact")
}

func (s *PostgresStore) FindContactByNamePhone(ctx context.Context, first, last, phone string) (*model.Contact, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE COALESCE(first_name, '') = $1 AND COALESCE(last_name, '') = $2 AND COALESCE(phone, '') = $3
		ORDER BY id LIMIT 1`,
		first, last, phone)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find contact by name and phone")
	}
	defer rows.Close()
	found, err := collect(rows, scanContact, "postgres: scan contact")
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (s *PostgresStore) InsertCompanies(ctx context.Context, companies []model.Company) ([]model.Company, error) {
	rows := make([][]any, len(companies))
	for i, c := range companies {
		rows[i] = []any{c.Name, nullIfEmpty(c.Timezone)}
	}
	var out []model.Company
	_, err := db.InsertReturning(ctx, s.q, db.InsertConfig{
		Table:     "companies",
		Columns:   []string{"name", "timezone"},
		Returning: []string{"id", "name", "timezone", "created_at"},
	}, rows, func(r pgx.Rows) error {
		var c model.Company
		var tz *string
		if err := r.Scan(&c.ID, &c.Name, &tz, &c.CreatedAt); err != nil {
			return err
		}
		c.Timezone = deref(tz)
		out = append(out, c)
		return nil
	})
	if err != nil {
		return out, eris.Wrap(err, "postgres: insert companies")
	}
	return out, nil
}

func (s *PostgresStore) InsertContacts(ctx context.Context, contacts []model.Contact) ([]model.Contact, error) {
	rows := make([][]any, len(contacts))
	for i, c := range contacts {
		rows[i] = []any{c.CompanyID, nullIfEmpty(c.FirstName), nullIfEmpty(c.LastName),
			nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Timezone)}
	}
	var out []model.Contact
	_, err := db.InsertReturning(ctx, s.q, db.InsertConfig{
		Table:     "contacts",
		Columns:   []string{"company_id", "first_name", "last_name", "email", "phone", "timezone"},
		Returning: []string{"id", "company_id", "first_name", "last_name", "email", "phone", "timezone", "created_at"},
	}, rows, func(r pgx.Rows) error {
		c, err := scanContactNullable(r)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return out, eris.Wrap(err, "postgres: insert contacts")
	}
	return out, nil
}

func (s *PostgresStore) InsertDeals(ctx context.Context, deals []model.Deal) ([]model.Deal, error) {
	rows := make([][]any, len(deals))
	for i, d := range deals {
		rows[i] = []any{d.Name, d.CompanyID, d.PrimaryContactID, d.PipelineID, d.Stage, nullIfEmpty(d.Timezone)}
	}
	var out []model.Deal
	_, err := db.InsertReturning(ctx, s.q, db.InsertConfig{
		Table:     "deals",
		Columns:   []string{"name", "company_id", "primary_contact_id", "pipeline_id", "stage", "timezone"},
		Returning: []string{"id", "name", "company_id", "primary_contact_id", "pipeline_id", "stage", "timezone", "created_at"},
	}, rows, func(r pgx.Rows) error {
		var d model.Deal
		var tz *string
		if err := r.Scan(&d.ID, &d.Name, &d.CompanyID, &d.PrimaryContactID, &d.PipelineID, &d.Stage, &tz, &d.CreatedAt); err != nil {
			return err
		}
		d.Timezone = deref(tz)
		out = append(out, d)
		return nil
	})
	if err != nil {
		return out, eris.Wrap(err, "postgres: insert deals")
	}
	return out, nil
}

func (s *PostgresStore) InsertNotes(ctx context.Context, notes []model.Note) (int, error) {
	rows := make([][]any, len(notes))
	for i, n := range notes {
		rows[i] = []any{n.DealID, n.ContactID, n.CompanyID, n.Body}
	}
	n, err := db.InsertReturning(ctx, s.q, db.InsertConfig{
		Table:   "notes",
		Columns: []string{"deal_id", "contact_id", "company_id", "body"},
	}, rows, nil)
	if err != nil {
		return n, eris.Wrap(err, "postgres: insert notes")
	}
	return n, nil
}

const contactColumns = `id, company_id, COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(email, ''), COALESCE(phone, ''), COALESCE(timezone, ''), created_at`

func scanCompany(r pgx.Rows) (model.Company, error) {
	var c model.Company
	err := r.Scan(&c.ID, &c.Name, &c.Timezone, &c.CreatedAt)
	return c, err
}

func scanContact(r pgx.Rows) (model.Contact, error) {
	var c model.Contact
	err := r.Scan(&c.ID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Timezone, &c.CreatedAt)
	return c, err
}

func scanContactNullable(r pgx.Rows) (model.Contact, error) {
	var c model.Contact
	var first, last, email, phone, tz *string
	if err := r.Scan(&c.ID, &c.CompanyID, &first, &last, &email, &phone, &tz, &c.CreatedAt); err != nil {
		return c, err
	}
	c.FirstName, c.LastName, c.Email, c.Phone, c.Timezone = deref(first), deref(last), deref(email), deref(phone), deref(tz)
	return c, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Rows) (T, error), msg string) ([]T, error) {
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, eris.Wrap(err, msg)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
