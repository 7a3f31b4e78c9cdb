package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crm-cli/internal/importer"
	"github.com/sells-group/crm-cli/internal/store"
)

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	s, err := f.AddSheet("Deals")
	require.NoError(t, err)
	for _, data := range rows {
		row := s.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "deals.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

// sqliteEnv points the CLI at a fresh SQLite database in a clean directory.
func sqliteEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	dbPath := filepath.Join(dir, "crm.db")
	t.Setenv("CRM_STORE_DRIVER", "sqlite")
	t.Setenv("CRM_STORE_DATABASE_URL", dbPath)
	t.Setenv("CRM_LOG_LEVEL", "error")
	return dbPath
}

func TestCLI_MigratePipelineImport(t *testing.T) {
	dbPath := sqliteEnv(t)
	importChunked, importAtomic, importSheet = false, false, ""

	_, err := runCLI(t, "migrate")
	require.NoError(t, err)

	out, err := runCLI(t, "pipeline", "add", "--name", "Outbound", "--stages", "Custom Intake,Discovery")
	require.NoError(t, err)
	assert.Contains(t, out, "Created pipeline 1 (Outbound)")

	out, err = runCLI(t, "pipeline", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Custom Intake, Discovery")

	file := writeWorkbook(t, [][]string{
		{"Deal export"},
		{"Company Name", "Deal Name", "Client First Name", "Client Last Name", "Client's Email", "Client's Phone", "Sales Stage", "Notes"},
		{"Acme", "Acme Renewal", "Jo", "Lee", "jo@acme.com", "6049002048", "Proposal", "Send MSA"},
		{"Acme", "Acme Upsell", "Jo", "Lee", "jo@acme.com", "6049002048", "xyz-unknown", ""},
	})
	out, err = runCLI(t, "import", "--file", file, "--pipeline", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "State:")
	assert.Contains(t, out, "done")

	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	companies, err := st.ListCompanies(context.Background())
	require.NoError(t, err)
	require.Len(t, companies, 1)

	contacts, err := st.ListContacts(context.Background())
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "+16049002048", contacts[0].Phone)
}

func TestCLI_ImportUnknownPipeline(t *testing.T) {
	sqliteEnv(t)
	importChunked, importAtomic, importSheet = false, false, ""

	_, err := runCLI(t, "migrate")
	require.NoError(t, err)

	file := writeWorkbook(t, [][]string{{"Company"}, {"Acme"}})
	_, err = runCLI(t, "import", "--file", file, "--pipeline", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline 42")
}

func TestCLI_Stage(t *testing.T) {
	sqliteEnv(t)
	stageList, stagePipeline = false, nil

	out, err := runCLI(t, "stage", "Closed - Won", "xyz-unknown")
	require.NoError(t, err)
	assert.Contains(t, out, "closed won")
	assert.Contains(t, out, "not contacted")

	stageList, stagePipeline = false, nil
	out, err = runCLI(t, "stage", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "not contacted (default)")
	stageList = false
}

func TestFormatResult(t *testing.T) {
	res := &importer.Result{
		RunID:       uuid.MustParse("6f1c2b3a-0000-4000-8000-000000000001"),
		State:       importer.StateFailed,
		Summary:     importer.Summary{CompaniesCreated: 2},
		RowsParsed:  3,
		RowsSkipped: 1,
		Errors:      []string{"row 4: missing company name"},
	}

	var buf bytes.Buffer
	formatResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "6f1c2b3a-0000-4000-8000-000000000001")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "Companies created:")
	assert.Contains(t, out, "Errors (1):")
	assert.Contains(t, out, "row 4: missing company name")
	assert.NotContains(t, out, "Nothing to import.")

	buf.Reset()
	formatResult(&buf, &importer.Result{State: importer.StateDone})
	assert.Contains(t, buf.String(), "Nothing to import.")
}
