package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"slotbook/internal/db"
	"slotbook/internal/model"
	"slotbook/internal/slots"
)

const dateLayout = "2006-01-02"

// Role selects whose bookings ListBookings returns.
type Role string

const (
	RoleClient Role = "client"
	RoleOwner  Role = "owner"
)

// Tab is a preset status/time filter of the bookings list.
type Tab string

const (
	TabUpcoming  Tab = "upcoming"
	TabPast      Tab = "past"
	TabCancelled Tab = "cancelled"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Filter narrows ListBookings. DateFrom and DateTo are inclusive local
// dates in "2006-01-02" form.
type Filter struct {
	Role      Role
	ActorID   int64
	ServiceID int64
	Status    model.BookingStatus
	Tab       Tab
	DateFrom  string
	DateTo    string
	Page      int
	Limit     int
}

// Page is one page of bookings.
type Page struct {
	Bookings   []model.Booking `json:"bookings"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

// Upcoming is the owner's dashboard.
type Upcoming struct {
	Today    []model.Booking `json:"today"`
	Tomorrow []model.Booking `json:"tomorrow"`
	ThisWeek []model.Booking `json:"thisWeek"`
	Pending  []model.Booking `json:"pending"`
}

// ListBookings returns the caller's bookings as client, or the bookings of
// the caller's services as owner.
func (s *Service) ListBookings(ctx context.Context, f Filter) (*Page, error) {
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	q := db.BookingFilter{Limit: limit, Offset: (page - 1) * limit}

	switch f.Role {
	case RoleOwner:
		owned, err := s.store.ListServicesByOwner(ctx, f.ActorID)
		if err != nil {
			return nil, fmt.Errorf("list owned services: %w", err)
		}
		if f.ServiceID != 0 {
			if !slices.Contains(owned, f.ServiceID) {
				return nil, ErrForbidden
			}
			owned = []int64{f.ServiceID}
		}
		if len(owned) == 0 {
			return &Page{Bookings: []model.Booking{}, Page: page, Limit: limit}, nil
		}
		q.ServiceIDs = owned
	default:
		q.ClientID = f.ActorID
		if f.ServiceID != 0 {
			q.ServiceIDs = []int64{f.ServiceID}
		}
	}

	now := s.now()
	switch f.Tab {
	case TabUpcoming:
		q.Statuses = []model.BookingStatus{model.StatusPending, model.StatusConfirmed}
		q.From = now
	case TabPast:
		q.Statuses = []model.BookingStatus{model.StatusCompleted, model.StatusNoShow}
		q.Descending = true
	case TabCancelled:
		q.Statuses = []model.BookingStatus{model.StatusCancelled}
		q.Descending = true
	case "":
		// Clients read their history newest first, owners work through
		// incoming requests in session order.
		q.Descending = f.Role != RoleOwner
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTab, f.Tab)
	}

	if f.Status != "" {
		q.Statuses = []model.BookingStatus{f.Status}
		q.Descending = !f.Status.Active()
	}

	loc, err := s.listLocation(ctx, q.ServiceIDs, f)
	if err != nil {
		return nil, err
	}
	if f.DateFrom != "" {
		from, err := time.ParseInLocation(dateLayout, f.DateFrom, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: dateFrom", ErrInvalidDate)
		}
		if from.After(q.From) {
			q.From = from
		}
	}
	if f.DateTo != "" {
		to, err := time.ParseInLocation(dateLayout, f.DateTo, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: dateTo", ErrInvalidDate)
		}
		q.To = to.AddDate(0, 0, 1)
	}

	list, total, err := s.store.ListBookings(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if list == nil {
		list = []model.Booking{}
	}

	return &Page{
		Bookings:   list,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// listLocation picks the zone the date bounds of f are read in: the
// service's own zone when the list covers a single service.
func (s *Service) listLocation(ctx context.Context, serviceIDs []int64, f Filter) (*time.Location, error) {
	if (f.DateFrom == "" && f.DateTo == "") || len(serviceIDs) != 1 {
		return s.cfg.Location, nil
	}
	svc, err := s.store.GetService(ctx, serviceIDs[0])
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return s.location(svc), nil
}

// Upcoming groups the owner's confirmed sessions of today, tomorrow and the
// rest of the week, plus all pending requests.
func (s *Service) Upcoming(ctx context.Context, ownerID int64) (*Upcoming, error) {
	out := &Upcoming{
		Today:    []model.Booking{},
		Tomorrow: []model.Booking{},
		ThisWeek: []model.Booking{},
		Pending:  []model.Booking{},
	}

	owned, err := s.store.ListServicesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owned services: %w", err)
	}
	if len(owned) == 0 {
		return out, nil
	}

	today := slots.DateOf(s.now(), s.cfg.Location)
	tomorrow := today.AddDate(0, 0, 1)
	afterTomorrow := today.AddDate(0, 0, 2)
	weekEnd := today.AddDate(0, 0, 7)

	confirmed := []model.BookingStatus{model.StatusConfirmed}
	groups := []struct {
		dst      *[]model.Booking
		statuses []model.BookingStatus
		from, to time.Time
	}{
		{&out.Today, confirmed, today, tomorrow},
		{&out.Tomorrow, confirmed, tomorrow, afterTomorrow},
		{&out.ThisWeek, confirmed, afterTomorrow, weekEnd},
		{&out.Pending, []model.BookingStatus{model.StatusPending}, time.Time{}, time.Time{}},
	}

	for _, g := range groups {
		list, _, err := s.store.ListBookings(ctx, db.BookingFilter{
			ServiceIDs: owned,
			Statuses:   g.statuses,
			From:       g.from,
			To:         g.to,
		})
		if err != nil {
			return nil, fmt.Errorf("list upcoming bookings: %w", err)
		}
		if list != nil {
			*g.dst = list
		}
	}
	return out, nil
}

// OwnerBookings returns every booking of the owner's services with a
// session in [from, to), used by the report export.
func (s *Service) OwnerBookings(ctx context.Context, ownerID int64, from, to time.Time) ([]model.Booking, error) {
	owned, err := s.store.ListServicesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owned services: %w", err)
	}
	if len(owned) == 0 {
		return []model.Booking{}, nil
	}
	list, _, err := s.store.ListBookings(ctx, db.BookingFilter{ServiceIDs: owned, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return list, nil
}

// GetBooking returns a booking visible to its client or the service owner.
func (s *Service) GetBooking(ctx context.Context, id, actorID int64) (*model.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b.ClientID == actorID {
		return b, nil
	}

	svc, err := s.store.GetService(ctx, b.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	if svc.OwnerID != actorID {
		return nil, ErrForbidden
	}
	return b, nil
}

// AvailabilityForRange expands the schedule of serviceID over the inclusive
// local date range [dateFrom, dateTo]. Empty bounds default to today and
// today plus the default range.
func (s *Service) AvailabilityForRange(ctx context.Context, serviceID int64, dateFrom, dateTo string) ([]slots.DayInfo, error) {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	now := s.now()
	loc := s.location(svc)
	from, to, err := s.parseRange(dateFrom, dateTo, now, loc)
	if err != nil {
		return nil, err
	}
	fromKey, toKey := from.Format(dateLayout), to.Format(dateLayout)

	// gen is read before computing, so a write racing with this request
	// orphans the entry stored below.
	days, gen, ok := s.cache.Lookup(ctx, serviceID, fromKey, toKey)
	if ok {
		return slots.FilterPast(days, now), nil
	}

	av, err := s.store.GetSchedule(ctx, serviceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	holidays, err := s.store.Holidays(ctx, serviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	active, err := s.store.ActiveBookings(ctx, serviceID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	opts := slots.Options{
		Now:       now,
		Location:  loc,
		Capacity:  svc.Capacity,
		Occupancy: slots.NewOccupancy(active, loc),
		Holidays:  holidays,
	}
	var expanded []slots.Day
	for d := range slots.Expand(av, from, to, opts) {
		expanded = append(expanded, d)
	}
	info := slots.ToDayInfo(expanded)

	s.cache.Store(ctx, serviceID, gen, fromKey, toKey, info)
	return info, nil
}

func (s *Service) parseRange(dateFrom, dateTo string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	from := slots.DateOf(now, loc)
	if dateFrom != "" {
		d, err := time.ParseInLocation(dateLayout, dateFrom, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: dateFrom", ErrInvalidDate)
		}
		from = d
	}

	to := from.AddDate(0, 0, s.cfg.DefaultRangeDays)
	if dateTo != "" {
		d, err := time.ParseInLocation(dateLayout, dateTo, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: dateTo", ErrInvalidDate)
		}
		to = d
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	if to.After(from.AddDate(0, 0, s.cfg.MaxRangeDays)) {
		return time.Time{}, time.Time{}, ErrRangeTooLarge
	}
	return from, to, nil
}
