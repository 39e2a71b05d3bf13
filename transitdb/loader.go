package transitdb

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"busview.transitireland.org/internal/logging"
)

// loadBatchSize is the number of rows committed per transaction during a
// reference load.
const loadBatchSize = 1000

// Load streams one reference resource into its table. The first transaction
// truncates the table, so a failure before the first commit leaves the old
// contents untouched. Rows are inserted in batches of loadBatchSize, each
// committed independently: a mid-stream failure rolls back only the current
// batch and leaves prior batches committed, meaning the table can end up
// partially populated. That is a deliberate tradeoff in favour of bounded
// transaction size over the stronger shadow-table-and-swap guarantee.
//
// Feed fields are matched to storage columns by header name, so the resource
// may order its columns freely. A field absent from the header is stored as
// NULL. Any parse error aborts this resource's load and is returned to the
// caller; sibling resources are unaffected.
func (c *Client) Load(ctx context.Context, tableName string, r io.Reader) (count int64, err error) {
	spec, ok := tableByName(tableName)
	if !ok {
		return 0, fmt.Errorf("unknown table %q", tableName)
	}

	start := time.Now()

	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("resource for %s is empty", tableName)
		}
		return 0, fmt.Errorf("error reading %s header: %w", tableName, err)
	}
	if len(header) > 0 {
		// The feed is served with a byte-order mark.
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	// Position of each declared column within the feed's header, -1 when the
	// feed does not carry that column.
	fieldIdx := make([]int, len(spec.columns))
	for i, col := range spec.columns {
		fieldIdx[i] = -1
		for j, name := range header {
			if name == col {
				fieldIdx[i] = j
				break
			}
		}
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.name,
		strings.Join(spec.columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(spec.columns)), ", "))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			logging.SafeRollbackWithLogging(tx, c.logger, "reference_load")
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+spec.name); err != nil {
		return 0, fmt.Errorf("error truncating %s: %w", tableName, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("error preparing statement: %w", err)
	}

	params := make([]any, len(spec.columns))
	batched := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("error parsing %s row: %w", tableName, err)
		}

		for i, idx := range fieldIdx {
			if idx >= 0 && idx < len(record) {
				params[i] = record[idx]
			} else {
				params[i] = nil
			}
		}

		if _, err := stmt.ExecContext(ctx, params...); err != nil {
			return count, fmt.Errorf("error inserting into %s: %w", tableName, err)
		}
		batched++

		if batched >= loadBatchSize {
			_ = stmt.Close()
			if err := tx.Commit(); err != nil {
				tx = nil
				return count, fmt.Errorf("error committing batch: %w", err)
			}
			count += int64(batched)
			batched = 0

			tx, err = c.DB.BeginTx(ctx, nil)
			if err != nil {
				return count, fmt.Errorf("error starting transaction: %w", err)
			}
			stmt, err = tx.PrepareContext(ctx, insertSQL)
			if err != nil {
				return count, fmt.Errorf("error preparing statement: %w", err)
			}
		}
	}

	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		tx = nil
		return count, fmt.Errorf("error committing final batch: %w", err)
	}
	tx = nil
	count += int64(batched)

	if c.config.verbose {
		logging.LogOperation(c.logger, "reference_table_loaded",
			slog.String("table", tableName),
			slog.Int64("rows", count),
			slog.Duration("duration", time.Since(start)))
	}

	return count, nil
}

// LoadError reports which resource failed during a multi-resource refresh so
// the caller can tell sibling failures apart.
type LoadError struct {
	Resource string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Resource, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
