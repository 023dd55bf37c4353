package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/noah-isme/sma-report-api/internal/models"
)

func init() {
	goose.AddMigrationContext(upParentAccessEnabledAt, downParentAccessEnabledAt)
}

// upParentAccessEnabledAt promotes the legacy marker embedded in
// headteacher_comment to a dedicated column and strips it from the comment.
func upParentAccessEnabledAt(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE report_cards ADD COLUMN IF NOT EXISTS parent_access_enabled_at TIMESTAMPTZ`); err != nil {
		return fmt.Errorf("add parent_access_enabled_at: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, headteacher_comment, updated_at FROM report_cards WHERE headteacher_comment LIKE '%[PARENT_ACCESS_ENABLED:%'`)
	if err != nil {
		return fmt.Errorf("select legacy markers: %w", err)
	}
	type legacyRow struct {
		id        string
		comment   string
		updatedAt time.Time
	}
	var legacy []legacyRow
	for rows.Next() {
		var row legacyRow
		if err := rows.Scan(&row.id, &row.comment, &row.updatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan legacy marker: %w", err)
		}
		legacy = append(legacy, row)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, row := range legacy {
		clean, enabledAt := models.StripAccessMarkers(row.comment)
		if enabledAt == nil {
			// Marker without a readable timestamp still granted access.
			ts := row.updatedAt.UTC()
			enabledAt = &ts
		}
		if _, err := tx.ExecContext(ctx, `UPDATE report_cards SET headteacher_comment = $1, parent_access_enabled_at = $2 WHERE id = $3`, clean, *enabledAt, row.id); err != nil {
			return fmt.Errorf("migrate marker for %s: %w", row.id, err)
		}
	}
	return nil
}

func downParentAccessEnabledAt(ctx context.Context, tx *sql.Tx) error {
	const restore = `UPDATE report_cards
        SET headteacher_comment = TRIM(headteacher_comment || ' [PARENT_ACCESS_ENABLED:' || to_char(parent_access_enabled_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"') || ']')
        WHERE parent_access_enabled_at IS NOT NULL`
	if _, err := tx.ExecContext(ctx, restore); err != nil {
		return fmt.Errorf("restore legacy markers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE report_cards DROP COLUMN IF EXISTS parent_access_enabled_at`); err != nil {
		return fmt.Errorf("drop parent_access_enabled_at: %w", err)
	}
	return nil
}
