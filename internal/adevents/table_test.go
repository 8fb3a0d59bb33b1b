package adevents

import (
	"context"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openadtrack/internal/creatives"
	"github.com/patrickwarner/openadtrack/internal/db"
	"github.com/patrickwarner/openadtrack/internal/models"
)

func newMockTable(t *testing.T) (*Table, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewTable(mockDB, 90*24*time.Hour, nil), mock
}

func TestPurgeExpiredCouplesToCatalogTables(t *testing.T) {
	table, mock := newMockTable(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	prev := nowFn
	nowFn = func() time.Time { return now }
	t.Cleanup(func() { nowFn = prev })

	// Both catalog subselects must guard the delete: an old row whose set is
	// still cataloged is never purged.
	mock.ExpectExec(`(?s)DELETE FROM ad_events.*created_at < \$1.*NOT IN \(SELECT creative_set_id FROM creative_ads\).*NOT IN \(SELECT creative_set_id FROM creative_set_conversions\)`).
		WithArgs(now.Add(-90 * 24 * time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := table.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeOrphanedTargetsSoleServedRows(t *testing.T) {
	table, mock := newMockTable(t)

	mock.ExpectExec(`(?s)DELETE FROM ad_events.*placement_id IN \(.*GROUP BY placement_id HAVING COUNT\(\*\) = 1`).
		WithArgs(models.AdTypeInlineContent.String(), models.ConfirmationTypeServed.String()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := table.PurgeOrphaned(context.Background(), models.AdTypeInlineContent)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateFromScratchWalksEveryStep(t *testing.T) {
	table, mock := newMockTable(t)

	okResult := sqlmock.NewResult(0, 0)
	mock.ExpectBegin()
	mock.ExpectExec(`uuid TEXT NOT NULL`).WillReturnResult(okResult)
	mock.ExpectExec(`ALTER TABLE ad_events RENAME TO ad_events_old`).WillReturnResult(okResult)
	mock.ExpectExec(`advertiser_id TEXT NOT NULL DEFAULT`).WillReturnResult(okResult)
	mock.ExpectExec(`SELECT uuid, ad_type`).WillReturnResult(okResult)
	mock.ExpectExec(`DROP TABLE ad_events_old`).WillReturnResult(okResult)
	mock.ExpectExec(`idx_ad_events_created_at`).WillReturnResult(okResult)
	mock.ExpectExec(`idx_ad_events_type`).WillReturnResult(okResult)
	mock.ExpectExec(`idx_ad_events_placement_id`).WillReturnResult(okResult)
	mock.ExpectExec(`idx_ad_events_creative_set_id`).WillReturnResult(okResult)

	tx, err := table.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, table.Migrate(tx, 0, table.LatestVersion()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateFromVersionTwoOnlyAddsIndexes(t *testing.T) {
	table, mock := newMockTable(t)

	okResult := sqlmock.NewResult(0, 0)
	mock.ExpectBegin()
	mock.ExpectExec(`idx_ad_events_created_at`).WillReturnResult(okResult)
	mock.ExpectExec(`idx_ad_events_type`).WillReturnResult(okResult)
	mock.ExpectExec(`idx_ad_events_placement_id`).WillReturnResult(okResult)
	mock.ExpectExec(`idx_ad_events_creative_set_id`).WillReturnResult(okResult)

	tx, err := table.DB.Begin()
	require.NoError(t, err)
	require.NoError(t, table.Migrate(tx, 2, table.LatestVersion()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPurgesIntegration runs the purge predicates against a real Postgres.
// Opt in with TEST_POSTGRES_DSN pointing at a disposable database.
func TestPurgesIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	pg, err := db.InitPostgres(dsn, 5, 2, time.Minute, time.Minute)
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	ctx := context.Background()
	table := NewTable(pg.DB, 90*24*time.Hour, nil)
	require.NoError(t, pg.MigrateAll(ctx, table, creatives.AdsTable{}, creatives.ConversionsTable{}))

	_, err = pg.DB.ExecContext(ctx, `TRUNCATE ad_events, creative_ads, creative_set_conversions`)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	log := func(placementID, creativeSetID string, ct models.ConfirmationType, createdAt time.Time) {
		t.Helper()
		require.NoError(t, table.LogEvent(ctx, models.AdEvent{
			PlacementID:      placementID,
			Type:             models.AdTypeNotification,
			ConfirmationType: ct,
			CreativeSetID:    creativeSetID,
			CreatedAt:        createdAt,
		}))
	}

	// A placement with only a served row is an orphan; one with a follow-up
	// event is not.
	log("placement-sole", "set-old", models.ConfirmationTypeServed, now)
	log("placement-followed", "set-old", models.ConfirmationTypeServed, now)
	log("placement-followed", "set-old", models.ConfirmationTypeClicked, now)

	orphaned, err := table.PurgeOrphaned(ctx, models.AdTypeNotification)
	require.NoError(t, err)
	assert.EqualValues(t, 1, orphaned)

	events, err := table.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "placement-followed", ev.PlacementID)
	}

	// Expiry removes rows past the horizon only when the creative set is gone
	// from both catalog tables.
	old := now.Add(-120 * 24 * time.Hour)
	log("placement-expired", "set-old", models.ConfirmationTypeViewed, old)
	log("placement-kept", "set-live", models.ConfirmationTypeViewed, old)

	catalog := creatives.NewCatalog(pg.DB)
	require.NoError(t, catalog.ReplaceAll(ctx, []models.CreativeAd{{
		CreativeInstanceID: "instance-live",
		CreativeSetID:      "set-live",
		Segment:            models.SegmentUntargeted,
		Dimensions:         "200x100",
		Ptr:                1,
		Priority:           1,
	}}, nil))

	expired, err := table.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, expired)

	events, err = table.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.NotEqual(t, "placement-expired", ev.PlacementID)
	}
}
