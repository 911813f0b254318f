package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// Table addresses the records table of one dataset.
type Table struct {
	ProjectID string
	DatasetID string
}

func (t Table) ref() string {
	return "`" + t.ProjectID + "." + t.DatasetID + "." + recordsTable + "`"
}

// ListRecordsWithClient returns all records of a kind ordered by ID.
func ListRecordsWithClient(ctx context.Context, client *bigquery.Client, t Table, kind string) ([]RecordRow, error) {
	q := client.Query(`
		SELECT
		  kind,
		  record_id,
		  TO_JSON_STRING(payload) AS payload,
		  updated_ts
		FROM ` + t.ref() + `
		WHERE kind = @kind
		ORDER BY record_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "kind", Value: kind},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecordsWithClient: query read: %w", err)
	}

	var rows []RecordRow
	for {
		var r RecordRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecordsWithClient: iter next: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// GetRecordWithClient returns one record, or nil when it does not exist.
func GetRecordWithClient(ctx context.Context, client *bigquery.Client, t Table, kind, id string) (*RecordRow, error) {
	q := client.Query(`
		SELECT
		  kind,
		  record_id,
		  TO_JSON_STRING(payload) AS payload,
		  updated_ts
		FROM ` + t.ref() + `
		WHERE kind = @kind AND record_id = @record_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "kind", Value: kind},
		{Name: "record_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetRecordWithClient: query read: %w", err)
	}

	var r RecordRow
	err = it.Next(&r)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetRecordWithClient: iter next: %w", err)
	}
	return &r, nil
}

// UpsertRecordWithClient inserts or replaces a record with a MERGE.
func UpsertRecordWithClient(ctx context.Context, client *bigquery.Client, t Table, row RecordRow) error {
	updated := time.Now().UTC()
	if row.UpdatedTS.Valid {
		updated = row.UpdatedTS.Timestamp
	}

	q := client.Query(`
		MERGE ` + t.ref() + ` AS target
		USING (
		  SELECT @kind AS kind, @record_id AS record_id, PARSE_JSON(@payload) AS payload, @updated_ts AS updated_ts
		) AS source
		ON target.kind = source.kind AND target.record_id = source.record_id
		WHEN MATCHED THEN
		  UPDATE SET payload = source.payload, updated_ts = source.updated_ts
		WHEN NOT MATCHED THEN
		  INSERT (kind, record_id, payload, updated_ts)
		  VALUES (source.kind, source.record_id, source.payload, source.updated_ts)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "kind", Value: row.Kind},
		{Name: "record_id", Value: row.RecordID},
		{Name: "payload", Value: row.Payload},
		{Name: "updated_ts", Value: updated},
	}
	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("UpsertRecordWithClient: %w", err)
	}
	return nil
}

// DeleteRecordWithClient deletes one record and reports whether a row was
// removed.
func DeleteRecordWithClient(ctx context.Context, client *bigquery.Client, t Table, kind, id string) (bool, error) {
	q := client.Query(`
		DELETE FROM ` + t.ref() + `
		WHERE kind = @kind AND record_id = @record_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "kind", Value: kind},
		{Name: "record_id", Value: id},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return false, fmt.Errorf("DeleteRecordWithClient: run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return false, fmt.Errorf("DeleteRecordWithClient: wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return false, fmt.Errorf("DeleteRecordWithClient: job error: %w", err)
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows > 0, nil
	}
	return true, nil
}

func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
