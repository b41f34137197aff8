package interfaces

import (
	"context"

	"go-events-query/internal/models"
)

//go:generate mockgen -package=mock -source=gateway.go -destination=mock/gateway.go

// EventsGateway performs the remote calls for the events resource.
// Failures are reported as *models.ErrorInfo.
type EventsGateway interface {
	ListEvents(ctx context.Context, params models.ListParams) ([]models.Event, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	CreateEvent(ctx context.Context, input models.EventInput) (*models.Event, error)
	UpdateEvent(ctx context.Context, id string, input models.EventInput) (*models.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}
