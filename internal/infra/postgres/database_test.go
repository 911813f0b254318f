package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLVerb(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{selectAll, "SELECT"},
		{upsert, "INSERT"},
		{"\n\t  delete from records", "DELETE"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqlVerb(tt.query))
	}
}

func TestCompact(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO records (kind, record_id, payload, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (kind, record_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at",
		compact(upsert))

	long := compact(strings.Repeat("x ", 300))
	assert.Len(t, long, 259)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestSchemaCreatesRecordsTable(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS records")
	assert.Contains(t, schema, "PRIMARY KEY (kind, record_id)")
}
