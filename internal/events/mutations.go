package events

import (
	"context"
	"encoding/json"
	"net/url"

	"go.uber.org/zap"

	"go-events-query/internal/interfaces"
	"go-events-query/internal/models"
	"go-events-query/internal/mutation"
	"go-events-query/internal/query"
	"go-events-query/internal/utils"
)

// UpdateInput identifies the event to update and its new fields
type UpdateInput struct {
	ID    string
	Event models.EventInput
}

// NewCreateMutation creates events. On success every events query is
// refetched and nav is sent to the list.
func (s *Service) NewCreateMutation(nav interfaces.Navigator) *mutation.Mutation[models.EventInput, *models.Event] {
	return mutation.New(mutation.Options[models.EventInput, *models.Event]{
		Name:       "create_event",
		MutationFn: s.gateway.CreateEvent,
		OnSuccess: func(ctx context.Context, event *models.Event, _ models.EventInput, _ any) {
			s.client.Invalidate(AllKey(), query.InvalidateOptions{RefetchType: query.RefetchActive})
			nav.Navigate(EventsPath)
		},
	}, s.logger)
}

// NewUpdateMutation updates events. On success every events query is
// invalidated and nav is sent to the event's detail view.
func (s *Service) NewUpdateMutation(nav interfaces.Navigator) *mutation.Mutation[UpdateInput, *models.Event] {
	return mutation.New(mutation.Options[UpdateInput, *models.Event]{
		Name: "update_event",
		MutationFn: func(ctx context.Context, in UpdateInput) (*models.Event, error) {
			return s.gateway.UpdateEvent(ctx, in.ID, in.Event)
		},
		OnSuccess: func(ctx context.Context, _ *models.Event, in UpdateInput, _ any) {
			s.client.Invalidate(AllKey(), query.InvalidateOptions{})
			nav.Navigate(DetailPath(in.ID))
		},
	}, s.logger)
}

// NewDeleteMutation deletes events. On success events queries are only
// marked stale, so the deleted detail is not refetched, and nav is sent to
// the list.
func (s *Service) NewDeleteMutation(nav interfaces.Navigator) *mutation.Mutation[string, struct{}] {
	return mutation.New(mutation.Options[string, struct{}]{
		Name: "delete_event",
		MutationFn: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, s.gateway.DeleteEvent(ctx, id)
		},
		OnSuccess: func(ctx context.Context, _ struct{}, _ string, _ any) {
			s.client.Invalidate(AllKey(), query.InvalidateOptions{RefetchType: query.RefetchNone})
			nav.Navigate(EventsPath)
		},
	}, s.logger)
}

// NewOptimisticUpdateMutation updates event id by writing the submitted
// fields into the cache first. A failed update restores the previous data,
// or resets the query when nothing was cached; either way the detail query
// is refetched once the backend answered.
func (s *Service) NewOptimisticUpdateMutation(id string) *mutation.Mutation[models.EventInput, *models.Event] {
	key := DetailKey(id)
	return mutation.New(mutation.Options[models.EventInput, *models.Event]{
		Name: "update_event_optimistic",
		MutationFn: func(ctx context.Context, in models.EventInput) (*models.Event, error) {
			return s.gateway.UpdateEvent(ctx, id, in)
		},
		OnMutate: func(ctx context.Context, in models.EventInput) (any, error) {
			s.client.Cancel(key)
			previous, _ := s.client.GetData(key)
			if err := s.client.SetData(key, in.ToEvent(id)); err != nil {
				return nil, err
			}
			return previous, nil
		},
		OnError: func(ctx context.Context, err *models.ErrorInfo, _ models.EventInput, rollback any) {
			previous, ok := rollback.(json.RawMessage)
			if !ok || previous == nil {
				s.client.ResetQuery(key)
				return
			}
			if setErr := s.client.SetData(key, previous); setErr != nil {
				s.logger.Error("Failed to roll back optimistic update", zap.String("id", id), zap.Error(setErr))
			}
		},
		OnSettled: func(ctx context.Context, _ *models.Event, _ *models.ErrorInfo, _ models.EventInput, _ any) {
			s.client.Invalidate(key, query.InvalidateOptions{})
		},
	}, s.logger)
}

// UpdateAction handles a submitted edit form for event id. With the
// invalidate policy it waits for the backend; with the optimistic policy it
// navigates as soon as the cache holds the submitted fields.
func (s *Service) UpdateAction(ctx context.Context, id string, form url.Values, nav interfaces.Navigator) error {
	input := utils.ParseEventForm(form)

	if s.cfg.UpdatePolicy == models.UpdatePolicyOptimistic {
		s.NewOptimisticUpdateMutation(id).Mutate(ctx, input)
		nav.Navigate(DetailPath(id))
		return nil
	}

	_, err := s.NewUpdateMutation(nav).MutateAsync(ctx, UpdateInput{ID: id, Event: input})
	return err
}
