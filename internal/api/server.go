// Package api exposes schedules and bookings over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"slotbook/internal/booking"
	"slotbook/internal/model"
	"slotbook/internal/slots"
)

// ScheduleService manages weekly availability.
type ScheduleService interface {
	SaveSchedule(ctx context.Context, serviceID, actorID int64, av model.WeeklyAvailability) (*model.WeeklyAvailability, error)
	GetSchedule(ctx context.Context, serviceID int64) (*model.WeeklyAvailability, error)
}

// BookingService allocates and manages bookings.
type BookingService interface {
	Book(ctx context.Context, req booking.BookRequest) (*model.Booking, error)
	Confirm(ctx context.Context, id, ownerID int64, note string) (*model.Booking, error)
	Cancel(ctx context.Context, id, actorID int64, reason string) (*model.Booking, error)
	CompleteByOwner(ctx context.Context, id, ownerID int64, note string) (*model.Booking, error)
	MarkNoShow(ctx context.Context, id, ownerID int64) (*model.Booking, error)
	ListBookings(ctx context.Context, f booking.Filter) (*booking.Page, error)
	Upcoming(ctx context.Context, ownerID int64) (*booking.Upcoming, error)
	OwnerBookings(ctx context.Context, ownerID int64, from, to time.Time) ([]model.Booking, error)
	GetBooking(ctx context.Context, id, actorID int64) (*model.Booking, error)
	AvailabilityForRange(ctx context.Context, serviceID int64, dateFrom, dateTo string) ([]slots.DayInfo, error)
}

// Options tune the HTTP surface.
type Options struct {
	// Location interprets export dates.
	Location *time.Location
	// MaxExportDays bounds the export range.
	MaxExportDays int
	// RateLimit is requests per second per caller, zero disables limiting.
	RateLimit float64
	RateBurst int
}

type Server struct {
	schedules ScheduleService
	bookings  BookingService
	opts      Options
	limiters  *limiterStore
	logger    zerolog.Logger
}

func NewServer(schedules ScheduleService, bookings BookingService, opts Options, logger *zerolog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxExportDays <= 0 {
		opts.MaxExportDays = 366
	}

	s := &Server{
		schedules: schedules,
		bookings:  bookings,
		opts:      opts,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	if opts.RateLimit > 0 {
		s.limiters = newLimiterStore(opts.RateLimit, opts.RateBurst)
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(identify)
	r.Use(s.rateLimit)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, ErrorBody{Code: CodeBadRequest, Message: "method not allowed"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/services/{id}/schedule", s.handleGetSchedule)
		r.Get("/services/{id}/slots", s.handleSlots)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Put("/services/{id}/schedule", s.handleSaveSchedule)
			r.Post("/services/{id}/book", s.handleBook)

			r.Get("/bookings", s.handleListBookings)
			r.Get("/bookings/upcoming", s.handleUpcoming)
			r.Get("/bookings/export", s.handleExport)
			r.Get("/bookings/{id}", s.handleGetBooking)
			r.Post("/bookings/{id}/confirm", s.handleConfirm)
			r.Post("/bookings/{id}/cancel", s.handleCancel)
			r.Post("/bookings/{id}/complete", s.handleComplete)
			r.Post("/bookings/{id}/no-show", s.handleNoShow)
		})
	})

	return r
}
