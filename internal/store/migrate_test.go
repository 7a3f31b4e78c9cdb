package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-cli/internal/stage"
)

func TestMigration_EnumMatchesStageList(t *testing.T) {
	data, err := migrationFS.ReadFile("migrations/001_crm.sql")
	require.NoError(t, err)
	sql := string(data)

	for _, s := range stage.All {
		assert.Contains(t, sql, "'"+s+"'", "deal_stage enum is missing %q", s)
	}
}

func TestSQLiteMigration_CheckMatchesStageList(t *testing.T) {
	sql := sqliteMigration()
	for _, s := range stage.All {
		assert.Contains(t, sql, "'"+s+"'")
	}
}
