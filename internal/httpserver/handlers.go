package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go-events-query/internal/events"
	"go-events-query/internal/models"
	"go-events-query/internal/query"
	"go-events-query/internal/utils"
)

// maxFormBytes bounds submitted event bodies
const maxFormBytes = 1 << 20

// handleEvents renders the recent events and the search results
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := s.events.Client()
	term := r.URL.Query().Get("search")

	view := EventsPageView{
		Recent:     listSection(client.Resolve(ctx, s.events.RecentQuery())),
		SearchTerm: term,
	}

	search := s.events.SearchQuery(term)
	if search.Disabled {
		view.Search = ListSectionView{Status: models.StatusIdle}
	} else {
		view.Search = listSection(client.Resolve(ctx, search.QueryOptions))
	}
	view.Fetching = client.IsFetching()

	s.writeResponse(w, http.StatusOK, &view)
}

// handleNewEventForm renders an empty form
func (s *Server) handleNewEventForm(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, &FormView{})
}

// handleCreateEvent submits the create form
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	input, err := readEventInput(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, events.ErrorBlock{Title: events.TitleCreateFailed, Message: err.Error()})
		return
	}

	nav := newRedirectNavigator(r.URL.Path)
	if _, err := s.events.NewCreateMutation(nav).MutateAsync(r.Context(), input); err != nil {
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, events.NewErrorBlock(events.TitleCreateFailed, events.MessageCreateEvent, err))
		return
	}

	s.redirect(w, r, nav, events.EventsPath)
}

// handleEventDetails renders one event from the cache, revalidating it when stale
func (s *Server) handleEventDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view := s.detailView(s.events.Client().Resolve(r.Context(), s.events.DetailQuery(id)))
	s.writeResponse(w, http.StatusOK, &view)
}

// handleDeleteEvent runs the delete mutation
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	nav := newRedirectNavigator(r.URL.Path)
	if _, err := s.events.NewDeleteMutation(nav).MutateAsync(r.Context(), id); err != nil {
		s.writeErrorResponse(w, events.ResponseStatus(err), events.NewErrorBlock(events.TitleDeleteFailed, events.MessageDeleteEvent, err))
		return
	}

	s.redirect(w, r, nav, events.EventsPath)
}

// handleEditEvent loads the event before showing the edit form
func (s *Server) handleEditEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	event, err := s.events.LoadEvent(r.Context(), id)
	if err != nil {
		var navErr *events.NavigationError
		if errors.As(err, &navErr) {
			s.writeErrorResponse(w, navErr.Status, navErr.Block)
			return
		}
		s.writeErrorResponse(w, http.StatusBadGateway, events.NewErrorBlock(events.TitleLoadFailed, events.MessageLoadEvent, err))
		return
	}

	s.writeResponse(w, http.StatusOK, &FormView{ID: id, Event: event.Input()})
}

// handleUpdateEvent submits the edit form
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	form, err := readEventForm(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, events.ErrorBlock{Title: events.TitleUpdateFailed, Message: err.Error()})
		return
	}

	nav := newRedirectNavigator(r.URL.Path)
	if err := s.events.UpdateAction(r.Context(), id, form, nav); err != nil {
		s.writeErrorResponse(w, events.ResponseStatus(err), events.NewErrorBlock(events.TitleUpdateFailed, events.MessageUpdateEvent, err))
		return
	}

	s.redirect(w, r, nav, events.DetailPath(id))
}

// handleWatchEvent streams detail snapshots as server-sent events until the
// client goes away
func (s *Server) handleWatchEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeErrorResponse(w, http.StatusInternalServerError, events.ErrorBlock{Title: events.TitleGeneric, Message: "Streaming unsupported"})
		return
	}

	ctx := r.Context()
	updates := make(chan query.Snapshot, 8)
	observer := s.events.Client().Subscribe(query.ObserverOptions{QueryOptions: s.events.DetailQuery(id)}, func(snap query.Snapshot) {
		select {
		case updates <- snap:
		case <-ctx.Done():
		}
	})
	defer observer.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug("Watching event", zap.String("id", id))
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Stopped watching event", zap.String("id", id))
			return
		case snap := <-updates:
			payload, err := json.Marshal(s.detailView(snap))
			if err != nil {
				s.logger.Error("Failed to encode snapshot", zap.String("id", id), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// listSection builds a list view from a cache snapshot
func listSection(snap query.Snapshot) ListSectionView {
	view := ListSectionView{Status: snap.Status, IsFetching: snap.IsFetching}
	if snap.HasData() {
		list, err := events.DecodeEvents(snap.Data)
		if err == nil {
			view.Events = list
		}
	}
	if snap.Error != nil {
		block := events.NewErrorBlock(events.TitleGeneric, events.MessageFetchEvents, snap.Error)
		view.Error = &block
	}
	return view
}

// detailView builds the detail view from a cache snapshot
func (s *Server) detailView(snap query.Snapshot) DetailView {
	view := DetailView{Status: snap.Status, IsFetching: snap.IsFetching}
	if snap.HasData() {
		if event, err := events.DecodeEvent(snap.Data); err == nil {
			view.Event = &EventView{
				Event:         *event,
				FormattedDate: utils.FormatEventDate(event.Date),
				ImageURL:      s.images.ImageURL(event.Image),
			}
		}
	}
	if snap.Error != nil {
		block := events.NewErrorBlock(events.TitleLoadFailed, events.MessageFetchEvent, snap.Error)
		view.Error = &block
	}
	return view
}

// readEventForm reads a submitted event as form values, accepting JSON bodies too
func readEventForm(r *http.Request) (url.Values, error) {
	if isJSON(r) {
		input, err := readEventInput(r)
		if err != nil {
			return nil, err
		}
		return utils.EventFormValues(input), nil
	}

	r.Body = io.NopCloser(io.LimitReader(r.Body, maxFormBytes))
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	return r.PostForm, nil
}

// readEventInput reads a submitted event from a form or JSON body
func readEventInput(r *http.Request) (models.EventInput, error) {
	if !isJSON(r) {
		form, err := readEventForm(r)
		if err != nil {
			return models.EventInput{}, err
		}
		return utils.ParseEventForm(form), nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		return models.EventInput{}, fmt.Errorf("failed to read request body: %w", err)
	}
	input, err := utils.ParseEventJSON(body)
	if err != nil {
		return models.EventInput{}, err
	}
	return input, nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
