package httpserver

import (
	"go-events-query/internal/events"
	"go-events-query/internal/models"
)

// EventView is an event prepared for display
type EventView struct {
	models.Event
	FormattedDate string `json:"formatted_date"`
	ImageURL      string `json:"image_url"`
}

// ListSectionView is one list of events with its loading state
type ListSectionView struct {
	Status     models.Status      `json:"status"`
	IsFetching bool               `json:"is_fetching"`
	Events     []models.Event     `json:"events,omitempty"`
	Error      *events.ErrorBlock `json:"error,omitempty"`
}

// EventsPageView is the landing view: recent events plus search results
type EventsPageView struct {
	Recent     ListSectionView `json:"recent"`
	Search     ListSectionView `json:"search"`
	SearchTerm string          `json:"search_term,omitempty"`
	Fetching   int             `json:"fetching"`
}

// DetailView is the event detail view
type DetailView struct {
	Status     models.Status      `json:"status"`
	IsFetching bool               `json:"is_fetching"`
	Event      *EventView         `json:"event,omitempty"`
	Error      *events.ErrorBlock `json:"error,omitempty"`
}

// FormView is the create/edit form
type FormView struct {
	Event models.EventInput `json:"event"`
	ID    string            `json:"id,omitempty"`
}

// ErrorResponse carries an error block
type ErrorResponse struct {
	Error events.ErrorBlock `json:"error"`
}

// StatusResponse reports the number of queries in flight
type StatusResponse struct {
	Fetching int `json:"fetching"`
}
