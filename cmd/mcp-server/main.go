// Command mcp-server exposes the ad-event subsystem to MCP clients as
// read-only reporting tools: querying the durable event log, summarizing the
// analytics mirror, and inspecting the pending conversion queue.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/adevents"
	"github.com/patrickwarner/openadtrack/internal/analytics"
	"github.com/patrickwarner/openadtrack/internal/config"
	"github.com/patrickwarner/openadtrack/internal/conversions"
	"github.com/patrickwarner/openadtrack/internal/db"
	"github.com/patrickwarner/openadtrack/internal/kvstore"
	"github.com/patrickwarner/openadtrack/internal/observability"
)

type QueryAdEventsInput struct {
	AdType           string `json:"ad_type,omitempty"`
	ConfirmationType string `json:"confirmation_type,omitempty"`
	CreativeSetID    string `json:"creative_set_id,omitempty"`
	Limit            int    `json:"limit,omitempty"`
}

type AdEventRow struct {
	PlacementID        string    `json:"placement_id"`
	AdType             string    `json:"ad_type"`
	ConfirmationType   string    `json:"confirmation_type"`
	CampaignID         string    `json:"campaign_id"`
	CreativeSetID      string    `json:"creative_set_id"`
	CreativeInstanceID string    `json:"creative_instance_id"`
	AdvertiserID       string    `json:"advertiser_id"`
	CreatedAt          time.Time `json:"created_at"`
}

type QueryAdEventsOutput struct {
	Events []AdEventRow `json:"events"`
}

type EventSummaryInput struct {
	SinceHours int `json:"since_hours,omitempty"`
}

type EventSummaryOutput struct {
	Counts map[string]int64 `json:"counts"`
}

type QueueStatusInput struct{}

type QueueStatusOutput struct {
	Pending       int        `json:"pending"`
	NextConfirmAt *time.Time `json:"next_confirm_at,omitempty"`
}

type reportServer struct {
	events *adevents.Table
	mirror *analytics.Analytics
	store  kvstore.Store
	logger *zap.Logger
}

func (s *reportServer) QueryAdEvents(ctx context.Context, req *mcp.CallToolRequest, input QueryAdEventsInput) (*mcp.CallToolResult, QueryAdEventsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var conds []adevents.Condition
	if input.AdType != "" {
		conds = append(conds, adevents.Condition{Column: "ad_type", Op: adevents.OpEq, Value: input.AdType})
	}
	if input.ConfirmationType != "" {
		conds = append(conds, adevents.Condition{Column: "confirmation_type", Op: adevents.OpEq, Value: input.ConfirmationType})
	}
	if input.CreativeSetID != "" {
		conds = append(conds, adevents.Condition{Column: "creative_set_id", Op: adevents.OpEq, Value: input.CreativeSetID})
	}

	events, err := s.events.GetIf(ctx, conds...)
	if err != nil {
		return nil, QueryAdEventsOutput{}, fmt.Errorf("query ad events: %w", err)
	}

	limit := input.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if len(events) > limit {
		events = events[:limit]
	}

	out := QueryAdEventsOutput{Events: make([]AdEventRow, 0, len(events))}
	for _, ev := range events {
		out.Events = append(out.Events, AdEventRow{
			PlacementID:        ev.PlacementID,
			AdType:             ev.Type.String(),
			ConfirmationType:   ev.ConfirmationType.String(),
			CampaignID:         ev.CampaignID,
			CreativeSetID:      ev.CreativeSetID,
			CreativeInstanceID: ev.CreativeInstanceID,
			AdvertiserID:       ev.AdvertiserID,
			CreatedAt:          ev.CreatedAt,
		})
	}
	return nil, out, nil
}

func (s *reportServer) EventSummary(ctx context.Context, req *mcp.CallToolRequest, input EventSummaryInput) (*mcp.CallToolResult, EventSummaryOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	hours := input.SinceHours
	if hours <= 0 {
		hours = 24
	}
	counts, err := s.mirror.CountByType(ctx, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, EventSummaryOutput{}, fmt.Errorf("event summary: %w", err)
	}
	return nil, EventSummaryOutput{Counts: counts}, nil
}

func (s *reportServer) QueueStatus(ctx context.Context, req *mcp.CallToolRequest, _ QueueStatusInput) (*mcp.CallToolResult, QueueStatusOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	data, err := s.store.Load(ctx, conversions.StateName)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, QueueStatusOutput{}, nil
	}
	if err != nil {
		return nil, QueueStatusOutput{}, fmt.Errorf("load queue state: %w", err)
	}

	items, err := conversions.DecodeState(data)
	if err != nil {
		return nil, QueueStatusOutput{}, fmt.Errorf("decode queue state: %w", err)
	}

	out := QueueStatusOutput{Pending: len(items)}
	for _, item := range items {
		if out.NextConfirmAt == nil || item.ConfirmAt.Before(*out.NextConfirmAt) {
			at := item.ConfirmAt
			out.NextConfirmAt = &at
		}
	}
	return nil, out, nil
}

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName + "-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns,
		cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("Failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	mirror, err := analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, observability.NewNoOpRegistry())
	if err != nil {
		logger.Warn("ClickHouse unavailable, event_summary disabled", zap.Error(err))
		mirror = nil
	} else {
		defer mirror.Close()
	}

	var store kvstore.Store
	if cfg.QueueStateBackend == "redis" {
		redisStore, err := kvstore.InitRedis(cfg.RedisAddr)
		if err != nil {
			logger.Fatal("Failed to connect redis", zap.Error(err))
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		fileStore, err := kvstore.NewFileStore(cfg.QueueStatePath)
		if err != nil {
			logger.Fatal("Failed to init state dir", zap.Error(err))
		}
		store = fileStore
	}

	srv := &reportServer{
		events: adevents.NewTable(pg.DB, cfg.EventRetention, observability.NewNoOpRegistry()),
		mirror: mirror,
		store:  store,
		logger: logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "openadtrack",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_ad_events",
		Description: "Query the durable ad event log, newest first",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ad_type": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"ad_notification", "inline_content_ad", "new_tab_page_ad", "promoted_content_ad"},
					"description": "Filter by ad type (optional)",
				},
				"confirmation_type": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"served", "viewed", "clicked", "dismissed", "conversion"},
					"description": "Filter by confirmation type (optional)",
				},
				"creative_set_id": map[string]interface{}{
					"type":        "string",
					"description": "Filter by creative set (optional)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Max rows to return (optional, defaults to 100)",
				},
			},
		},
	}, srv.QueryAdEvents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "event_summary",
		Description: "Summarize mirrored ad events by type over a recent window",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"since_hours": map[string]interface{}{
					"type":        "integer",
					"description": "Window in hours (optional, defaults to 24)",
				},
			},
		},
	}, srv.EventSummary)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conversion_queue_status",
		Description: "Inspect the pending conversion queue",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, srv.QueueStatus)

	stdioTransport := &mcp.StdioTransport{}

	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: stdioTransport,
		Writer:    &logBuffer,
	}

	logger.Info("MCP Server running via stdio")

	if err := server.Run(context.Background(), loggingTransport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
