package bigquery

import (
	"cloud.google.com/go/bigquery"
)

// recordsTable holds every ledger record as a JSON document keyed by
// (kind, record_id). Schema: migrations/bigquery/0001_create_records.sql.
const recordsTable = "records"

// RecordRow is one row of the records table.
type RecordRow struct {
	Kind      string                 `bigquery:"kind"`      // REQUIRED
	RecordID  string                 `bigquery:"record_id"` // REQUIRED
	Payload   string                 `bigquery:"payload"`   // JSON, read through TO_JSON_STRING
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"`
}
