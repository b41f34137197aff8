package events

import (
	"fmt"
	"net/http"

	"go-events-query/internal/models"
)

// Error block titles
const (
	TitleGeneric      = "An error occurred"
	TitleLoadFailed   = "Failed to load event"
	TitleCreateFailed = "Failed to create event"
	TitleDeleteFailed = "Failed to delete event"
	TitleUpdateFailed = "Failed to update event"
)

// Fallback messages used when the backend supplied none
const (
	MessageFetchEvents = "Failed to fetch events."
	MessageFetchEvent  = "Failed to fetch event data, please try again later."
	MessageLoadEvent   = "Failed to load event. Please check your inputs and try again later."
	MessageCreateEvent = "Failed to create event. Please check your inputs and try again later."
	MessageDeleteEvent = "Failed to delete event, please try again later."
	MessageUpdateEvent = "Failed to update event, please try again later."
)

// ErrorBlock is the title and message shown in place of failed content
type ErrorBlock struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// NewErrorBlock uses the backend's info.message when present, else fallback
func NewErrorBlock(title, fallback string, err error) ErrorBlock {
	message := models.AsErrorInfo(err).InfoMessage()
	if message == "" {
		message = fallback
	}
	return ErrorBlock{Title: title, Message: message}
}

// NavigationError is a failure that prevents a route from being shown at all
type NavigationError struct {
	Status int
	Block  ErrorBlock
	Err    *models.ErrorInfo
}

// ResponseStatus maps a failure to the status a view answers with: the
// backend's status when there was one, else 502
func ResponseStatus(err error) int {
	if info := models.AsErrorInfo(err); info != nil && info.StatusCode != 0 {
		return info.StatusCode
	}
	return http.StatusBadGateway
}

func newNavigationError(err error, title, fallback string) *NavigationError {
	info := models.AsErrorInfo(err)
	return &NavigationError{
		Status: ResponseStatus(info),
		Block:  NewErrorBlock(title, fallback, info),
		Err:    info,
	}
}

// Error implements the error interface
func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation failed: %s", e.Err.Error())
}

// Unwrap returns the underlying gateway error
func (e *NavigationError) Unwrap() error {
	return e.Err
}
