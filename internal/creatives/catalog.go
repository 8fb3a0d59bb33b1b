// Package creatives stores the servable creative catalog and its conversion
// patterns. The catalog is replaced wholesale on every sync; serving reads
// between syncs see a consistent snapshot because the replace runs in one
// transaction.
package creatives

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/models"
)

const adColumns = `creative_instance_id, creative_set_id, campaign_id,
    advertiser_id, segment, dimensions, ptr, priority`

const conversionColumns = `creative_set_id, url_pattern, observation_window_seconds,
    advertiser_public_key`

// Catalog wraps the creative_ads and creative_set_conversions tables.
type Catalog struct {
	DB *sql.DB
}

// NewCatalog constructs a Catalog over an open database handle.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{DB: db}
}

// ReplaceAll atomically swaps the full catalog for the given ads and
// conversion patterns. An error leaves the previous catalog untouched.
func (c *Catalog) ReplaceAll(ctx context.Context, ads []models.CreativeAd, conversions []models.CreativeSetConversion) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog sync: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM creative_ads`); err != nil {
		return fmt.Errorf("clear creative_ads: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM creative_set_conversions`); err != nil {
		return fmt.Errorf("clear creative_set_conversions: %w", err)
	}

	adStmt, err := tx.PrepareContext(ctx, `INSERT INTO creative_ads (`+adColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("prepare creative_ads insert: %w", err)
	}
	defer adStmt.Close()
	for _, ad := range ads {
		if _, err := adStmt.ExecContext(ctx, ad.CreativeInstanceID, ad.CreativeSetID,
			ad.CampaignID, ad.AdvertiserID, ad.Segment, ad.Dimensions,
			ad.Ptr, ad.Priority); err != nil {
			return fmt.Errorf("insert creative ad %s: %w", ad.CreativeInstanceID, err)
		}
	}

	convStmt, err := tx.PrepareContext(ctx, `INSERT INTO creative_set_conversions (`+conversionColumns+`)
        VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare creative_set_conversions insert: %w", err)
	}
	defer convStmt.Close()
	for _, conv := range conversions {
		if _, err := convStmt.ExecContext(ctx, conv.CreativeSetID, conv.URLPattern,
			int64(conv.ObservationWindow/time.Second), conv.AdvertiserPublicKey); err != nil {
			return fmt.Errorf("insert conversion pattern for set %s: %w", conv.CreativeSetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog sync: %w", err)
	}
	zap.L().Info("catalog synced",
		zap.Int("creative_ads", len(ads)),
		zap.Int("conversion_patterns", len(conversions)))
	return nil
}

// GetForDimensions returns the creatives declared for the given slot size.
func (c *Catalog) GetForDimensions(ctx context.Context, dimensions string) ([]models.CreativeAd, error) {
	return c.queryAds(ctx, `SELECT `+adColumns+` FROM creative_ads WHERE dimensions = $1`, dimensions)
}

// GetAllAds returns every creative in the catalog.
func (c *Catalog) GetAllAds(ctx context.Context) ([]models.CreativeAd, error) {
	return c.queryAds(ctx, `SELECT `+adColumns+` FROM creative_ads`)
}

func (c *Catalog) queryAds(ctx context.Context, query string, args ...any) ([]models.CreativeAd, error) {
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query creative ads: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var ads []models.CreativeAd
	for rows.Next() {
		var ad models.CreativeAd
		if err := rows.Scan(&ad.CreativeInstanceID, &ad.CreativeSetID, &ad.CampaignID,
			&ad.AdvertiserID, &ad.Segment, &ad.Dimensions, &ad.Ptr, &ad.Priority); err != nil {
			return nil, fmt.Errorf("scan creative ad: %w", err)
		}
		ads = append(ads, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ads, nil
}

// GetAllConversions returns every conversion pattern in the catalog.
func (c *Catalog) GetAllConversions(ctx context.Context) ([]models.CreativeSetConversion, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT `+conversionColumns+` FROM creative_set_conversions`)
	if err != nil {
		return nil, fmt.Errorf("query conversion patterns: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var conversions []models.CreativeSetConversion
	for rows.Next() {
		var conv models.CreativeSetConversion
		var windowSeconds int64
		if err := rows.Scan(&conv.CreativeSetID, &conv.URLPattern,
			&windowSeconds, &conv.AdvertiserPublicKey); err != nil {
			return nil, fmt.Errorf("scan conversion pattern: %w", err)
		}
		conv.ObservationWindow = time.Duration(windowSeconds) * time.Second
		conversions = append(conversions, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return conversions, nil
}

// AdsTable is the migratable view of creative_ads.
type AdsTable struct{}

func (AdsTable) Name() string       { return "creative_ads" }
func (AdsTable) LatestVersion() int { return 1 }

func (AdsTable) Migrate(tx *sql.Tx, fromVersion, toVersion int) error {
	if fromVersion < 1 && toVersion >= 1 {
		if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS creative_ads (
            id BIGSERIAL PRIMARY KEY,
            creative_instance_id TEXT NOT NULL,
            creative_set_id TEXT NOT NULL,
            campaign_id TEXT NOT NULL DEFAULT '',
            advertiser_id TEXT NOT NULL DEFAULT '',
            segment TEXT NOT NULL DEFAULT 'untargeted',
            dimensions TEXT NOT NULL DEFAULT '',
            ptr DOUBLE PRECISION NOT NULL DEFAULT 1.0,
            priority INTEGER NOT NULL DEFAULT 1
        )`); err != nil {
			return fmt.Errorf("creative_ads migration v1: %w", err)
		}
		if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_creative_ads_dimensions
            ON creative_ads (dimensions)`); err != nil {
			return fmt.Errorf("creative_ads migration v1 index: %w", err)
		}
	}
	return nil
}

// ConversionsTable is the migratable view of creative_set_conversions.
type ConversionsTable struct{}

func (ConversionsTable) Name() string       { return "creative_set_conversions" }
func (ConversionsTable) LatestVersion() int { return 1 }

func (ConversionsTable) Migrate(tx *sql.Tx, fromVersion, toVersion int) error {
	if fromVersion < 1 && toVersion >= 1 {
		if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS creative_set_conversions (
            id BIGSERIAL PRIMARY KEY,
            creative_set_id TEXT NOT NULL,
            url_pattern TEXT NOT NULL,
            observation_window_seconds BIGINT NOT NULL DEFAULT 0,
            advertiser_public_key TEXT NOT NULL DEFAULT ''
        )`); err != nil {
			return fmt.Errorf("creative_set_conversions migration v1: %w", err)
		}
		if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_creative_set_conversions_set_id
            ON creative_set_conversions (creative_set_id)`); err != nil {
			return fmt.Errorf("creative_set_conversions migration v1 index: %w", err)
		}
	}
	return nil
}
