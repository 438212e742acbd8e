package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/civiltime"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/service"
)

func (s *HTTPServer) handleResources(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	resources := make([]models.Resource, 0)
	for _, res := range s.engine.Resources() {
		if res.Visible || identity.Privileged() {
			resources = append(resources, res)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func queryDate(r *http.Request) (civiltime.Date, bool) {
	day, err := civiltime.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	return day, err == nil
}

func queryRange(r *http.Request) (from, to time.Time, ok bool) {
	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	return from, to, errFrom == nil && errTo == nil && to.After(from)
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}
	day, ok := queryDate(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date is required; expected YYYY-MM-DD")
		return
	}

	slots, err := s.engine.ListSlots(r.Context(), id, day, identityFrom(r).Privileged())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.String(), "slots": slots})
}

func (s *HTTPServer) handleSheet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}
	day, ok := queryDate(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date is required; expected YYYY-MM-DD")
		return
	}

	sheet, err := s.engine.DaySheet(r.Context(), id, day, identityFrom(r).Privileged())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

func (s *HTTPServer) handleOccupied(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}
	from, to, ok := queryRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "from and to are required; expected RFC3339")
		return
	}

	reservations, err := s.engine.ListOccupied(r.Context(), id, from, to, identityFrom(r).Privileged())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

func (s *HTTPServer) handleBlackouts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}
	from, to, ok := queryRange(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "from and to are required; expected RFC3339")
		return
	}

	blackouts, err := s.engine.ListBlackouts(r.Context(), id, from, to, identityFrom(r).Privileged())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blackouts": blackouts})
}

type createRequestBody struct {
	ResourceID       int64     `json:"resource_id"`
	Owner            string    `json:"owner"`
	OwnerGroup       string    `json:"owner_group"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Experiment       string    `json:"experiment"`
	Probe            string    `json:"probe"`
	Billing          string    `json:"billing"`
	ClientAccount    string    `json:"client_account"`
	ClientPriceCents int64     `json:"client_price_cents"`
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	var body createRequestBody
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	owner := strings.TrimSpace(body.Owner)
	if owner == "" {
		owner = identity.Name
	}

	reservation, err := s.engine.Create(r.Context(), service.CreateRequest{
		ResourceID:       body.ResourceID,
		Owner:            owner,
		OwnerGroup:       body.OwnerGroup,
		Start:            body.Start,
		End:              body.End,
		Experiment:       body.Experiment,
		Probe:            body.Probe,
		Billing:          body.Billing,
		ClientAccount:    body.ClientAccount,
		ClientPriceCents: body.ClientPriceCents,
		Actor:            identity.Name,
		Privileged:       identity.Privileged(),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ReservationFilter{
		Owner: strings.TrimSpace(q.Get("owner")),
	}
	if raw := q.Get("resource_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resource_id")
			return
		}
		filter.ResourceID = id
	}
	for _, status := range q["status"] {
		filter.Statuses = append(filter.Statuses, strings.ToUpper(strings.TrimSpace(status)))
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from; expected RFC3339")
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to; expected RFC3339")
			return
		}
		filter.To = to
	}

	reservations, err := s.engine.ListAll(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

func (s *HTTPServer) handlePending(w http.ResponseWriter, r *http.Request) {
	reservations, err := s.engine.ListPending(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reservations": reservations,
		"count":        len(reservations),
	})
}

func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}
	reservation, err := s.engine.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func decodeReason(r *http.Request) string {
	var body reasonBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	return strings.TrimSpace(body.Reason)
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id int64, identity Identity) (*models.Reservation, error) {
		return s.engine.Approve(r.Context(), id, identity.Name, identity.Privileged())
	})
}

func (s *HTTPServer) handleDeny(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id int64, identity Identity) (*models.Reservation, error) {
		return s.engine.Deny(r.Context(), id, identity.Name, identity.Privileged())
	})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	reason := decodeReason(r)
	s.transition(w, r, func(id int64, identity Identity) (*models.Reservation, error) {
		return s.engine.Cancel(r.Context(), id, identity.Name, identity.Privileged(), reason)
	})
}

func (s *HTTPServer) handleResolveCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Accept bool `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.transition(w, r, func(id int64, identity Identity) (*models.Reservation, error) {
		return s.engine.ResolveCancel(r.Context(), id, identity.Name, identity.Privileged(), body.Accept)
	})
}

func (s *HTTPServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	reason := decodeReason(r)
	s.transition(w, r, func(id int64, identity Identity) (*models.Reservation, error) {
		return s.engine.Remove(r.Context(), id, identity.Name, identity.Privileged(), reason)
	})
}

func (s *HTTPServer) transition(w http.ResponseWriter, r *http.Request, apply func(int64, Identity) (*models.Reservation, error)) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}
	reservation, err := apply(id, identityFrom(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}
