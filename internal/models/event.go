package models

// Event represents a single event resource as served by the backend
type Event struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Image       string `json:"image"`
}

// EventInput is the write payload for create and update requests
type EventInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Image       string `json:"image"`
}

// ToEvent returns the event the input describes, stamped with id
func (in EventInput) ToEvent(id string) Event {
	return Event{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date,
		Time:        in.Time,
		Location:    in.Location,
		Image:       in.Image,
	}
}

// Input returns the editable fields of the event
func (e Event) Input() EventInput {
	return EventInput{
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date,
		Time:        e.Time,
		Location:    e.Location,
		Image:       e.Image,
	}
}

// ListParams narrows a list query. Zero fields are omitted from both the
// query string and the cache key.
type ListParams struct {
	Search string `json:"search,omitempty"`
	Max    int    `json:"max,omitempty"`
}

// IsZero reports whether no filter is set
func (p ListParams) IsZero() bool {
	return p.Search == "" && p.Max == 0
}
