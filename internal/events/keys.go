package events

import (
	"net/url"

	"go-events-query/internal/models"
	"go-events-query/internal/query"
)

// Category is the first element of every events query key
const Category = "events"

// AllKey matches every events query
func AllKey() query.Key {
	return query.Key{Category}
}

// ListKey identifies a list query; unfiltered lists share AllKey
func ListKey(params models.ListParams) query.Key {
	if params.IsZero() {
		return AllKey()
	}
	return query.Key{Category, params}
}

// DetailKey identifies a single event
func DetailKey(id string) query.Key {
	return query.Key{Category, id}
}

// Navigation targets
const (
	EventsPath   = "/events"
	NewEventPath = "/events/new"
)

// DetailPath returns the path of an event's detail view
func DetailPath(id string) string {
	return EventsPath + "/" + url.PathEscape(id)
}

// EditPath returns the path of an event's edit view
func EditPath(id string) string {
	return DetailPath(id) + "/edit"
}
