// Package analytics mirrors ad events into ClickHouse for aggregate
// reporting. The mirror is advisory: serving correctness never depends on it,
// and an unconfigured mirror is a no-op rather than an error path callers
// must handle.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/openadtrack/internal/models"
	"github.com/patrickwarner/openadtrack/internal/observability"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// Analytics wraps a ClickHouse connection holding the ad event mirror.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

// InitClickHouse connects to ClickHouse and ensures the mirror table exists.
func InitClickHouse(dsn string, maxOpenConns int, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	create := `CREATE TABLE IF NOT EXISTS ad_events (
       timestamp            DateTime,
       ad_type              String,
       confirmation_type    String,
       placement_id         String,
       campaign_id          String,
       creative_set_id      String,
       creative_instance_id String,
       advertiser_id        String,
       device_type          Nullable(String),
       country              Nullable(String)
   ) ENGINE=MergeTree() ORDER BY (ad_type, confirmation_type, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// RecordAdEvent inserts one mirrored event row. deviceType and country are
// request-derived enrichment and may be empty.
func (a *Analytics) RecordAdEvent(ctx context.Context, event models.AdEvent, deviceType, country string) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}

	var device, ctry sql.NullString
	if deviceType != "" {
		device = sql.NullString{String: deviceType, Valid: true}
	}
	if country != "" {
		ctry = sql.NullString{String: country, Valid: true}
	}

	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := a.DB.ExecContext(ctx, `INSERT INTO ad_events (
        timestamp, ad_type, confirmation_type, placement_id, campaign_id,
        creative_set_id, creative_instance_id, advertiser_id, device_type, country
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, event.Type.String(), event.ConfirmationType.String(),
		event.PlacementID, event.CampaignID, event.CreativeSetID,
		event.CreativeInstanceID, event.AdvertiserID, device, ctry)
	if err != nil {
		return fmt.Errorf("clickhouse insert ad event: %w", err)
	}
	return nil
}

// CountByType returns mirrored event counts grouped by ad type and
// confirmation type since the given time.
func (a *Analytics) CountByType(ctx context.Context, since time.Time) (map[string]int64, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}

	rows, err := a.DB.QueryContext(ctx, `SELECT ad_type, confirmation_type, count()
        FROM ad_events WHERE timestamp >= ?
        GROUP BY ad_type, confirmation_type`, since)
	if err != nil {
		return nil, fmt.Errorf("clickhouse count by type: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	counts := make(map[string]int64)
	for rows.Next() {
		var adType, confirmationType string
		var n int64
		if err := rows.Scan(&adType, &confirmationType, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[adType+":"+confirmationType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}

// Close releases the ClickHouse connection.
func (a *Analytics) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
