package db

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundledSchemaCreatesSessionAudit(t *testing.T) {
	files, err := fs.Glob(schemaFS, "sql/*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"sql/session_audit.sql"}, files)

	ddl, err := schemaFS.ReadFile(files[0])
	require.NoError(t, err)
	text := string(ddl)
	assert.Contains(t, text, "CREATE TABLE IF NOT EXISTS session_audit")
	for _, column := range []string{"session_id", "user_id", "username", "role", "action", "ip", "user_agent", "occurred_at"} {
		assert.Contains(t, text, column)
	}
}

func TestNewRejectsMalformedDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres://%zz", 2)
	assert.ErrorContains(t, err, "platform/db: parse config")
}
