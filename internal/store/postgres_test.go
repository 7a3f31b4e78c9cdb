package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func TestPostgresStore_GetPipeline_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, stages, created_at FROM pipelines WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	p, err := s.GetPipeline(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPipeline(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM pipelines WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "stages", "created_at"}).
			AddRow(int64(3), "Outbound", []string{"Custom Intake", "Discovery"}, now))

	p, err := s.GetPipeline(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Outbound", p.Name)
	assert.Equal(t, []string{"Custom Intake", "Discovery"}, p.Stages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPipeline_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pipelines`).WithArgs(int64(1)).WillReturnError(errors.New("connection reset"))

	_, err := s.GetPipeline(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get pipeline 1")
}

func TestPostgresStore_InsertCompanies(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO "companies" \("name", "timezone"\) VALUES \(\$1, \$2\), \(\$3, \$4\) RETURNING`).
		WithArgs("Acme", strPtr("PST"), "Globex", (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "timezone", "created_at"}).
			AddRow(int64(10), "Acme", strPtr("PST"), now).
			AddRow(int64(11), "Globex", (*string)(nil), now))

	out, err := s.InsertCompanies(context.Background(), []model.Company{
		{Name: "Acme", Timezone: "PST"},
		{Name: "Globex"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(10), out[0].ID)
	assert.Equal(t, "PST", out[0].Timezone)
	assert.Equal(t, int64(11), out[1].ID)
	assert.Empty(t, out[1].Timezone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertCompanies_HiddenByPolicy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO "companies"`).
		WithArgs("Acme", (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "timezone", "created_at"}))

	out, err := s.InsertCompanies(context.Background(), []model.Company{{Name: "Acme"}})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDeals_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO "deals"`).
		WillReturnError(errors.New(`invalid input value for enum deal_stage: "xyz"`))

	_, err := s.InsertDeals(context.Background(), []model.Deal{{Name: "D", PipelineID: 1, Stage: "xyz"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert deals")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDeals(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO "deals" \("name", "company_id", "primary_contact_id", "pipeline_id", "stage", "timezone"\)`).
		WithArgs("Acme Renewal", i64Ptr(10), (*int64)(nil), int64(3), "proposal / scope", (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "company_id", "primary_contact_id", "pipeline_id", "stage", "timezone", "created_at"}).
			AddRow(int64(7), "Acme Renewal", i64Ptr(10), (*int64)(nil), int64(3), "proposal / scope", (*string)(nil), now))

	out, err := s.InsertDeals(context.Background(), []model.Deal{
		{Name: "Acme Renewal", CompanyID: i64Ptr(10), PipelineID: 3, Stage: "proposal / scope"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(7), out[0].ID)
	assert.Equal(t, int64(10), *out[0].CompanyID)
	assert.Nil(t, out[0].PrimaryContactID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertNotes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "notes" \("deal_id", "contact_id", "company_id", "body"\)`).
		WithArgs(int64(7), (*int64)(nil), i64Ptr(10), "Send MSA").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := s.InsertNotes(context.Background(), []model.Note{{DealID: 7, CompanyID: i64Ptr(10), Body: "Send MSA"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindCompaniesByName_LowerCases(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE lower\(name\) = ANY\(\$1\)`).
		WithArgs([]string{"acme", "globex"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "timezone", "created_at"}).
			AddRow(int64(10), "Acme", "", now))

	out, err := s.FindCompaniesByName(context.Background(), []string{" Acme", "GLOBEX"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Acme", out[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	companies, err := s.FindCompaniesByName(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, companies)

	contacts, err := s.FindContactsByEmail(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, contacts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindContactByNamePhone(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM contacts\s+WHERE COALESCE\(first_name, ''\) = \$1`).
		WithArgs("Jo", "Lee", "+16049002048").
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "first_name", "last_name", "email", "phone", "timezone", "created_at"}).
			AddRow(int64(5), i64Ptr(10), "Jo", "Lee", "", "+16049002048", "", now))

	c, err := s.FindContactByNamePhone(context.Background(), "Jo", "Lee", "+16049002048")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(5), c.ID)
	assert.Equal(t, int64(10), *c.CompanyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindContactByNamePhone_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM contacts`).
		WithArgs("A", "B", "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "first_name", "last_name", "email", "phone", "timezone", "created_at"}))

	c, err := s.FindContactByNamePhone(context.Background(), "A", "B", "")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestPostgresStore_WithTx_Commit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "notes"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx Store) error {
		_, err := tx.InsertNotes(context.Background(), []model.Note{{DealID: 1, Body: "x"}})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTx_Rollback(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(Store) error {
		return errors.New("contacts step failed")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contacts step failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec(`CREATE TYPE deal_stage`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("001_crm.sql").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_SkipsApplied(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_crm.sql"))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_FailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(migrationLockID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec(`CREATE TYPE deal_stage`).WillReturnError(errors.New("type exists"))
	mock.ExpectRollback()

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_crm.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_LockError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WithArgs(migrationLockID).WillReturnError(errors.New("timeout"))
	mock.ExpectRollback()

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advisory lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close_Borrowed(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}
