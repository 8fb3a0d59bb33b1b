package adevents

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/models"
	"github.com/patrickwarner/openadtrack/internal/observability"
)

// DefaultEventRetention is the expiry horizon for the durable table purge.
const DefaultEventRetention = 90 * 24 * time.Hour

const eventColumns = `placement_id, ad_type, confirmation_type, campaign_id,
    creative_set_id, creative_instance_id, advertiser_id, created_at`

// Table is the durable append-only ad event log. Rows are only ever inserted
// (there is no natural dedup key) and only removed by the expiry and orphan
// purges.
type Table struct {
	DB        *sql.DB
	Retention time.Duration
	Metrics   observability.MetricsRegistry
}

// NewTable constructs a Table over an open database handle.
func NewTable(db *sql.DB, retention time.Duration, metrics observability.MetricsRegistry) *Table {
	if retention <= 0 {
		retention = DefaultEventRetention
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Table{DB: db, Retention: retention, Metrics: metrics}
}

// LogEvent inserts one ad event row.
func (t *Table) LogEvent(ctx context.Context, event models.AdEvent) error {
	stmt := `INSERT INTO ad_events (` + eventColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := t.DB.ExecContext(ctx, stmt,
		event.PlacementID, event.Type.String(), event.ConfirmationType.String(),
		event.CampaignID, event.CreativeSetID, event.CreativeInstanceID,
		event.AdvertiserID, event.CreatedAt); err != nil {
		zap.L().Error("ad event insert failed", zap.Error(err),
			zap.String("ad_type", event.Type.String()),
			zap.String("confirmation_type", event.ConfirmationType.String()))
		return fmt.Errorf("insert ad event: %w", err)
	}
	t.Metrics.IncrementAdEvent(event.Type.String(), event.ConfirmationType.String())
	return nil
}

// GetIf returns events matching every condition, newest first.
func (t *Table) GetIf(ctx context.Context, conds ...Condition) ([]models.AdEvent, error) {
	where, args, err := buildWhere(conds, 1)
	if err != nil {
		return nil, fmt.Errorf("build conditions: %w", err)
	}

	query := `SELECT ` + eventColumns + ` FROM ad_events` + where + ` ORDER BY created_at DESC`
	rows, err := t.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ad events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []models.AdEvent
	for rows.Next() {
		var ev models.AdEvent
		var adType, confirmationType string
		if err := rows.Scan(&ev.PlacementID, &adType, &confirmationType,
			&ev.CampaignID, &ev.CreativeSetID, &ev.CreativeInstanceID,
			&ev.AdvertiserID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ad event: %w", err)
		}
		ev.Type = models.AdType(adType)
		ev.ConfirmationType = models.ConfirmationType(confirmationType)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// GetAll returns every event, newest first.
func (t *Table) GetAll(ctx context.Context) ([]models.AdEvent, error) {
	return t.GetIf(ctx)
}

// GetForType returns every event of the given ad type, newest first.
func (t *Table) GetForType(ctx context.Context, adType models.AdType) ([]models.AdEvent, error) {
	return t.GetIf(ctx, Condition{Column: "ad_type", Op: OpEq, Value: adType.String()})
}

// PurgeExpired deletes rows older than the retention horizon whose creative
// set no longer appears in the creative catalog or the conversion catalog.
// It is coupled to those tables' contents, so it must run after a catalog
// sync has committed, never concurrently with one.
func (t *Table) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := nowFn().Add(-t.Retention)
	res, err := t.DB.ExecContext(ctx, `DELETE FROM ad_events
        WHERE created_at < $1
          AND creative_set_id NOT IN (SELECT creative_set_id FROM creative_ads)
          AND creative_set_id NOT IN (SELECT creative_set_id FROM creative_set_conversions)`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired ad events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired rows affected: %w", err)
	}
	t.Metrics.AddPurgedRows("expired", n)
	zap.L().Info("purged expired ad events", zap.Int64("rows", n))
	return n, nil
}

// PurgeOrphaned deletes served rows of the given ad type that are the only
// row for their placement: the ad was served but nothing ever followed, so
// the residue carries no signal.
func (t *Table) PurgeOrphaned(ctx context.Context, adType models.AdType) (int64, error) {
	res, err := t.DB.ExecContext(ctx, `DELETE FROM ad_events
        WHERE ad_type = $1
          AND confirmation_type = $2
          AND placement_id IN (
            SELECT placement_id FROM ad_events GROUP BY placement_id HAVING COUNT(*) = 1
          )`,
		adType.String(), models.ConfirmationTypeServed.String())
	if err != nil {
		return 0, fmt.Errorf("purge orphaned ad events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge orphaned rows affected: %w", err)
	}
	t.Metrics.AddPurgedRows("orphaned", n)
	zap.L().Info("purged orphaned ad events",
		zap.String("ad_type", adType.String()), zap.Int64("rows", n))
	return n, nil
}

// Name implements db.MigratableTable.
func (t *Table) Name() string { return "ad_events" }

// LatestVersion implements db.MigratableTable.
func (t *Table) LatestVersion() int { return 3 }

// Migrate applies the ordered migration steps with versions in
// (fromVersion, toVersion]. Each step is idempotent DDL; the caller wraps the
// walk and the version bump in one transaction.
func (t *Table) Migrate(tx *sql.Tx, fromVersion, toVersion int) error {
	for _, step := range adEventsMigrations {
		if step.version <= fromVersion || step.version > toVersion {
			continue
		}
		if err := step.apply(tx); err != nil {
			return fmt.Errorf("ad_events migration v%d: %w", step.version, err)
		}
	}
	return nil
}

type migrationStep struct {
	version int
	apply   func(*sql.Tx) error
}

var adEventsMigrations = []migrationStep{
	{
		// Initial shape. The placement identifier was originally stored
		// under "uuid" and the advertiser was not tracked.
		version: 1,
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS ad_events (
                id BIGSERIAL PRIMARY KEY,
                uuid TEXT NOT NULL,
                ad_type TEXT NOT NULL,
                confirmation_type TEXT NOT NULL,
                campaign_id TEXT NOT NULL DEFAULT '',
                creative_set_id TEXT NOT NULL DEFAULT '',
                creative_instance_id TEXT NOT NULL DEFAULT '',
                created_at TIMESTAMPTZ NOT NULL
            )`)
			return err
		},
	},
	{
		// Rename-and-recreate to the current column set, copying rows across.
		version: 2,
		apply: func(tx *sql.Tx) error {
			stmts := []string{
				`ALTER TABLE ad_events RENAME TO ad_events_old`,
				`CREATE TABLE ad_events (
                    id BIGSERIAL PRIMARY KEY,
                    placement_id TEXT NOT NULL,
                    ad_type TEXT NOT NULL,
                    confirmation_type TEXT NOT NULL,
                    campaign_id TEXT NOT NULL DEFAULT '',
                    creative_set_id TEXT NOT NULL DEFAULT '',
                    creative_instance_id TEXT NOT NULL DEFAULT '',
                    advertiser_id TEXT NOT NULL DEFAULT '',
                    created_at TIMESTAMPTZ NOT NULL
                )`,
				`INSERT INTO ad_events (placement_id, ad_type, confirmation_type,
                    campaign_id, creative_set_id, creative_instance_id, created_at)
                 SELECT uuid, ad_type, confirmation_type,
                    campaign_id, creative_set_id, creative_instance_id, created_at
                 FROM ad_events_old`,
				`DROP TABLE ad_events_old`,
			}
			for _, s := range stmts {
				if _, err := tx.Exec(s); err != nil {
					return err
				}
			}
			return nil
		},
	},
	{
		version: 3,
		apply: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_ad_events_created_at ON ad_events (created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_ad_events_type ON ad_events (ad_type, confirmation_type)`,
				`CREATE INDEX IF NOT EXISTS idx_ad_events_placement_id ON ad_events (placement_id)`,
				`CREATE INDEX IF NOT EXISTS idx_ad_events_creative_set_id ON ad_events (creative_set_id)`,
			}
			for _, s := range stmts {
				if _, err := tx.Exec(s); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
