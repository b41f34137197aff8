package utils

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go-events-query/internal/models"
)

const (
	inputDateLayout   = "2006-01-02"
	displayDateLayout = "Jan 2, 2006"
)

// ParseEventForm builds an event payload from submitted form fields
func ParseEventForm(form url.Values) models.EventInput {
	return models.EventInput{
		Title:       strings.TrimSpace(form.Get("title")),
		Description: strings.TrimSpace(form.Get("description")),
		Date:        strings.TrimSpace(form.Get("date")),
		Time:        strings.TrimSpace(form.Get("time")),
		Location:    strings.TrimSpace(form.Get("location")),
		Image:       strings.TrimSpace(form.Get("image")),
	}
}

// EventFormValues is the inverse of ParseEventForm
func EventFormValues(input models.EventInput) url.Values {
	return url.Values{
		"title":       {input.Title},
		"description": {input.Description},
		"date":        {input.Date},
		"time":        {input.Time},
		"location":    {input.Location},
		"image":       {input.Image},
	}
}

// ParseEventJSON parses an event payload sent either wrapped as
// {"event": {...}} or as a bare object
func ParseEventJSON(body []byte) (models.EventInput, error) {
	if len(body) == 0 {
		return models.EventInput{}, fmt.Errorf("empty request body")
	}

	var wrapped struct {
		Event *models.EventInput `json:"event"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return models.EventInput{}, fmt.Errorf("failed to parse event payload: %w", err)
	}
	if wrapped.Event != nil {
		return *wrapped.Event, nil
	}

	var input models.EventInput
	if err := json.Unmarshal(body, &input); err != nil {
		return models.EventInput{}, fmt.Errorf("failed to parse event payload: %w", err)
	}
	return input, nil
}

// FormatEventDate renders a YYYY-MM-DD date as "Jan 2, 2006". Dates in any
// other shape are returned unchanged.
func FormatEventDate(date string) string {
	parsed, err := time.Parse(inputDateLayout, date)
	if err != nil {
		return date
	}
	return parsed.Format(displayDateLayout)
}
