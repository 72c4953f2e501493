package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"slotbook/internal/audit"
	"slotbook/internal/booking"
	"slotbook/internal/model"
	"slotbook/internal/slots"
)

const (
	dateLayout      = "2006-01-02"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type bookRequest struct {
	TariffID    int64     `json:"tariffId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	ClientNote  string    `json:"clientNote"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type slotsResponse struct {
	ServiceID int64           `json:"serviceId"`
	Days      []slots.DayInfo `json:"days"`
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(w, r)
	if !ok {
		return
	}
	av, err := s.schedules.GetSchedule(r.Context(), serviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, av)
}

func (s *Server) handleSaveSchedule(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(w, r)
	if !ok {
		return
	}
	var av model.WeeklyAvailability
	if err := render.DecodeJSON(r.Body, &av); err != nil {
		writeBadRequest(w, r, "invalid schedule body: "+err.Error())
		return
	}

	actorID, _ := userFrom(r.Context())
	saved, err := s.schedules.SaveSchedule(r.Context(), serviceID, actorID, av)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, saved)
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	days, err := s.bookings.AvailabilityForRange(r.Context(), serviceID, q.Get("dateFrom"), q.Get("dateTo"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, slotsResponse{ServiceID: serviceID, Days: days})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeBadRequest(w, r, "invalid booking body: "+err.Error())
		return
	}
	if req.TariffID <= 0 {
		writeBadRequest(w, r, "tariffId is required")
		return
	}
	if req.ScheduledAt.IsZero() {
		writeBadRequest(w, r, "scheduledAt is required")
		return
	}

	clientID, _ := userFrom(r.Context())
	b, err := s.bookings.Book(r.Context(), booking.BookRequest{
		ServiceID:   serviceID,
		TariffID:    req.TariffID,
		ClientID:    clientID,
		ScheduledAt: req.ScheduledAt,
		ClientNote:  req.ClientNote,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, b)
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actorID, _ := userFrom(r.Context())

	f := booking.Filter{
		Role:     booking.RoleClient,
		ActorID:  actorID,
		Tab:      booking.Tab(q.Get("tab")),
		DateFrom: q.Get("dateFrom"),
		DateTo:   q.Get("dateTo"),
	}

	switch role := booking.Role(q.Get("role")); role {
	case "", booking.RoleClient:
	case booking.RoleOwner:
		f.Role = role
	default:
		writeBadRequest(w, r, "unknown role "+string(role))
		return
	}
	if raw := q.Get("status"); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			writeBadRequest(w, r, "unknown status "+raw)
			return
		}
		f.Status = st
	}

	var err error
	if f.ServiceID, err = queryInt64(q.Get("serviceId")); err != nil {
		writeBadRequest(w, r, "invalid serviceId")
		return
	}
	if f.Page, err = queryInt(q.Get("page")); err != nil {
		writeBadRequest(w, r, "invalid page")
		return
	}
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeBadRequest(w, r, "invalid limit")
		return
	}

	page, err := s.bookings.ListBookings(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, page)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := userFrom(r.Context())
	up, err := s.bookings.Upcoming(r.Context(), ownerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, up)
}

// handleExport streams the owner's bookings in [dateFrom, dateTo] as XLSX.
// The range defaults to the current month.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	loc := s.opts.Location
	q := r.URL.Query()

	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, -1)

	if raw := q.Get("dateFrom"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			writeBadRequest(w, r, "invalid dateFrom")
			return
		}
		from = d
	}
	if raw := q.Get("dateTo"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			writeBadRequest(w, r, "invalid dateTo")
			return
		}
		to = d
	}
	if to.Before(from) {
		writeBadRequest(w, r, "dateTo is before dateFrom")
		return
	}
	if to.Sub(from) > time.Duration(s.opts.MaxExportDays)*24*time.Hour {
		writeBadRequest(w, r, fmt.Sprintf("range exceeds %d days", s.opts.MaxExportDays))
		return
	}

	ownerID, _ := userFrom(r.Context())
	list, err := s.bookings.OwnerBookings(r.Context(), ownerID, from, to.AddDate(0, 0, 1))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := audit.WriteBookings(&buf, list, loc); err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", audit.Filename(ownerID, from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actorID, _ := userFrom(r.Context())
	b, err := s.bookings.GetBooking(r.Context(), id, actorID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, b)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	s.transition(w, r, &req, func(id, actorID int64) (*model.Booking, error) {
		return s.bookings.Confirm(r.Context(), id, actorID, req.Note)
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	s.transition(w, r, &req, func(id, actorID int64) (*model.Booking, error) {
		return s.bookings.Cancel(r.Context(), id, actorID, req.Reason)
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	s.transition(w, r, &req, func(id, actorID int64) (*model.Booking, error) {
		return s.bookings.CompleteByOwner(r.Context(), id, actorID, req.Note)
	})
}

func (s *Server) handleNoShow(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, nil, func(id, actorID int64) (*model.Booking, error) {
		return s.bookings.MarkNoShow(r.Context(), id, actorID)
	})
}

// transition decodes an optional body into req and applies op to the
// booking named in the path.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, req any, op func(id, actorID int64) (*model.Booking, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if req != nil {
		if err := decodeOptional(r, req); err != nil {
			writeBadRequest(w, r, "invalid body: "+err.Error())
			return
		}
	}

	actorID, _ := userFrom(r.Context())
	b, err := op(id, actorID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, b)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, r, "invalid id")
		return 0, false
	}
	return id, true
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := render.DecodeJSON(r.Body, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func queryInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
