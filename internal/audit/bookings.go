package audit

import (
	"fmt"
	"io"
	"time"

	"slotbook/internal/model"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
	timeLayout    = "2006-01-02 15:04"
)

var bookingColumns = []string{
	"ID", "Service", "Tariff", "Client", "Date", "Start", "End", "Minutes",
	"Status", "Price", "Client note", "Provider note", "Cancel reason", "Created",
}

var summaryOrder = []model.BookingStatus{
	model.StatusPending,
	model.StatusConfirmed,
	model.StatusCompleted,
	model.StatusCancelled,
	model.StatusNoShow,
}

// WriteBookings writes an XLSX report of bookings to out. Times are shown in
// loc. The second sheet sums bookings and revenue per status.
func WriteBookings(out io.Writer, bookings []model.Booking, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	w := newSheetWriter()
	defer func() { _ = w.close() }()

	if err := w.addSheet(bookingsSheet); err != nil {
		return err
	}
	if err := w.writeHeader(bookingColumns); err != nil {
		return err
	}

	counts := make(map[model.BookingStatus]int)
	revenue := make(map[model.BookingStatus]int64)

	for i := range bookings {
		b := &bookings[i]
		start := b.ScheduledAt.In(loc)
		row := []any{
			b.ID,
			b.ServiceID,
			b.TariffID,
			b.ClientID,
			start.Format("2006-01-02"),
			start.Format("15:04"),
			b.EndAt.In(loc).Format("15:04"),
			b.DurationMinutes,
			string(b.Status),
			b.PricePaid,
			b.ClientNote,
			b.ProviderNote,
			b.CancelReason,
			b.CreatedAt.In(loc).Format(timeLayout),
		}
		if err := w.writeRow(row); err != nil {
			return fmt.Errorf("write booking %d: %w", b.ID, err)
		}
		counts[b.Status]++
		revenue[b.Status] += b.PricePaid
	}

	if err := w.addSheet(summarySheet); err != nil {
		return err
	}
	if err := w.writeHeader([]string{"Status", "Bookings", "Amount"}); err != nil {
		return err
	}
	for _, st := range summaryOrder {
		if err := w.writeRow([]any{string(st), counts[st], revenue[st]}); err != nil {
			return err
		}
	}
	if err := w.writeRow([]any{"total", len(bookings), sum(revenue)}); err != nil {
		return err
	}

	return w.save(out)
}

// Filename names a report covering [from, to].
func Filename(ownerID int64, from, to time.Time) string {
	return fmt.Sprintf("bookings_%d_%s_%s.xlsx", ownerID, from.Format("20060102"), to.Format("20060102"))
}

func sum(m map[model.BookingStatus]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}
