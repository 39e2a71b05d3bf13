package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"busview.transitireland.org/internal/logging"
)

// TripEntity is one entity from the live feed payload.
type TripEntity struct {
	ID         string      `json:"id"`
	TripUpdate *TripUpdate `json:"trip_update"`
}

type TripUpdate struct {
	Trip           TripDescriptor   `json:"trip"`
	StopTimeUpdate []StopTimeUpdate `json:"stop_time_update"`
}

type TripDescriptor struct {
	TripID               string `json:"trip_id"`
	RouteID              string `json:"route_id"`
	DirectionID          int    `json:"direction_id"`
	StartDate            string `json:"start_date"` // YYYYMMDD
	StartTime            string `json:"start_time"` // H:MM:SS, H may exceed 23
	ScheduleRelationship string `json:"schedule_relationship"`
}

type StopTimeUpdate struct {
	StopSequence         int        `json:"stop_sequence"`
	StopID               string     `json:"stop_id"`
	ScheduleRelationship string     `json:"schedule_relationship"`
	Arrival              *StopEvent `json:"arrival"`
	Departure            *StopEvent `json:"departure"`
}

// StopEvent carries a delay in seconds, an absolute unix timestamp, or both.
type StopEvent struct {
	Delay *int64 `json:"delay"`
	Time  *int64 `json:"time"`
}

// LiveFeed fetches one snapshot of raw vehicle updates.
type LiveFeed interface {
	Poll(ctx context.Context) ([]TripEntity, error)
}

// LiveFeedClient polls the realtime trip-updates endpoint, authenticated
// with a static API key header.
type LiveFeedClient struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

func NewLiveFeedClient(url, apiKey string, client *http.Client, logger *slog.Logger) *LiveFeedClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &LiveFeedClient{
		url:    url,
		apiKey: apiKey,
		client: client,
		logger: logger,
	}
}

func (c *LiveFeedClient) Poll(ctx context.Context) ([]TripEntity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching live feed: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "live_feed_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("live feed request failed: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Entity []TripEntity `json:"entity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("error decoding live feed payload: %w", err)
	}

	return payload.Entity, nil
}
