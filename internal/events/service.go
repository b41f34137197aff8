package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"go-events-query/internal/config"
	"go-events-query/internal/interfaces"
	"go-events-query/internal/models"
	"go-events-query/internal/query"
)

// Service binds the events backend to the query cache: it owns the query
// definitions, the route loader and the write actions of the application.
type Service struct {
	client  *query.Client
	gateway interfaces.EventsGateway
	cfg     *config.QueryConfig
	logger  *zap.Logger
}

// NewService creates a new events service
func NewService(client *query.Client, gw interfaces.EventsGateway, cfg *config.QueryConfig, logger *zap.Logger) *Service {
	return &Service{
		client:  client,
		gateway: gw,
		cfg:     cfg,
		logger:  logger,
	}
}

// Client returns the underlying query cache
func (s *Service) Client() *query.Client {
	return s.client
}

// ListQuery lists events matching params
func (s *Service) ListQuery(params models.ListParams) query.QueryOptions {
	return query.QueryOptions{
		Key: ListKey(params),
		Fn: func(ctx context.Context, _ query.Key) (json.RawMessage, error) {
			events, err := s.gateway.ListEvents(ctx, params)
			if err != nil {
				return nil, err
			}
			return json.Marshal(events)
		},
	}
}

// RecentQuery lists the most recent events shown on the landing section
func (s *Service) RecentQuery() query.QueryOptions {
	opts := s.ListQuery(models.ListParams{Max: s.cfg.RecentMax})
	opts.StaleTime = s.cfg.RecentStaleTime
	return opts
}

// SearchQuery lists events matching term. It stays disabled until a term is given.
func (s *Service) SearchQuery(term string) query.ObserverOptions {
	return query.ObserverOptions{
		QueryOptions: s.ListQuery(models.ListParams{Search: term}),
		Disabled:     term == "",
	}
}

// DetailQuery loads one event for the detail view
func (s *Service) DetailQuery(id string) query.QueryOptions {
	return query.QueryOptions{
		Key:       DetailKey(id),
		Fn:        s.eventFn(id),
		StaleTime: s.cfg.DetailStaleTime,
	}
}

// EditQuery loads one event for the edit form
func (s *Service) EditQuery(id string) query.QueryOptions {
	opts := s.DetailQuery(id)
	opts.StaleTime = s.cfg.EditStaleTime
	return opts
}

func (s *Service) eventFn(id string) query.QueryFunc {
	return func(ctx context.Context, _ query.Key) (json.RawMessage, error) {
		event, err := s.gateway.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(event)
	}
}

// LoadEvent fetches an event before its edit view is shown. Any failure is
// reported as a *NavigationError.
func (s *Service) LoadEvent(ctx context.Context, id string) (*models.Event, error) {
	raw, err := s.client.Fetch(ctx, query.QueryOptions{Key: DetailKey(id), Fn: s.eventFn(id)})
	if err != nil {
		s.logger.Warn("Failed to load event", zap.String("id", id), zap.Error(err))
		return nil, newNavigationError(err, TitleLoadFailed, MessageLoadEvent)
	}

	event, err := DecodeEvent(raw)
	if err != nil {
		return nil, newNavigationError(&models.ErrorInfo{Kind: models.ParseError, Message: MessageLoadEvent, Err: err}, TitleLoadFailed, MessageLoadEvent)
	}
	return event, nil
}

// DecodeEvents decodes cached list data
func DecodeEvents(raw json.RawMessage) ([]models.Event, error) {
	var events []models.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// DecodeEvent decodes cached detail data
func DecodeEvent(raw json.RawMessage) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &event, nil
}
