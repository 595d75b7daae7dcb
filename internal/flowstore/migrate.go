package flowstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callflow-platform/pkg/utils"
)

// MigrateLegacy rewrites every live legacy-shaped blocks payload into the
// graph format in one transaction. Reads convert on the fly anyway; this
// only makes the stored form canonical. It returns the number of rows
// rewritten. With dryRun the transaction is rolled back.
//
// Object-shaped payloads are either legacy configs or the {"blocks": [...]}
// wrapper; both end up as a plain array.
func MigrateLegacy(ctx context.Context, db *sql.DB, now time.Time, dryRun bool) (int, error) {
	var migrated int
	err := utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
SELECT id, blocks FROM call_flows
WHERE deleted_at IS NULL AND jsonb_typeof(blocks) = 'object'
FOR UPDATE
`)
		if err != nil {
			return fmt.Errorf("flowstore: select legacy flows: %w", err)
		}
		type pending struct {
			id  string
			raw []byte
		}
		var todo []pending
		for rows.Next() {
			var id string
			var raw []byte
			if err := rows.Scan(&id, &raw); err != nil {
				_ = rows.Close()
				return err
			}
			blocks, _, err := DecodeBlocks(raw)
			if err != nil {
				_ = rows.Close()
				return fmt.Errorf("flowstore: flow %s: %w", id, err)
			}
			enc, err := EncodeBlocks(blocks)
			if err != nil {
				_ = rows.Close()
				return err
			}
			todo = append(todo, pending{id: id, raw: enc})
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		for _, p := range todo {
			if _, err := tx.ExecContext(ctx,
				`UPDATE call_flows SET blocks = $2, updated_at = $3 WHERE id = $1`,
				p.id, string(p.raw), now,
			); err != nil {
				return fmt.Errorf("flowstore: rewrite flow %s: %w", p.id, err)
			}
		}
		migrated = len(todo)
		if dryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		return migrated, nil
	}
	if err != nil {
		return 0, err
	}
	return migrated, nil
}

var errDryRun = errors.New("flowstore: dry run")
