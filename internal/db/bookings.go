package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotbook/internal/model"
)

const bookingColumns = `id, service_id, tariff_id, client_id, scheduled_at, end_at, duration_minutes,
	status, price_paid, client_note, provider_note, cancel_reason, cancelled_by, chat_room_id,
	confirmed_at, cancelled_at, completed_at, created_at, updated_at, version`

// BookingFilter narrows ListBookings.
type BookingFilter struct {
	ClientID   int64
	ServiceIDs []int64
	Statuses   []model.BookingStatus
	From       time.Time // scheduled_at >= From when set
	To         time.Time // scheduled_at < To when set
	Descending bool
	Limit      int
	Offset     int
}

// CapacityCheck inspects the stored schedule and the active bookings of the
// target day inside the allocation transaction. A non-nil error aborts it.
type CapacityCheck func(av *model.WeeklyAvailability, active []model.Booking) error

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b                                   model.Booking
		scheduledAt, endAt                  int64
		status                              string
		cancelledBy                         sql.NullInt64
		chatRoom                            sql.NullString
		confirmedAt, cancelledAt, completed sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.ServiceID, &b.TariffID, &b.ClientID, &scheduledAt, &endAt, &b.DurationMinutes,
		&status, &b.PricePaid, &b.ClientNote, &b.ProviderNote, &b.CancelReason, &cancelledBy, &chatRoom,
		&confirmedAt, &cancelledAt, &completed, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	b.EndAt = time.Unix(endAt, 0).UTC()
	b.Status = model.BookingStatus(status)
	if cancelledBy.Valid {
		v := cancelledBy.Int64
		b.CancelledBy = &v
	}
	if chatRoom.Valid {
		v := chatRoom.String
		b.ChatRoomID = &v
	}
	b.ConfirmedAt = timePtr(confirmedAt)
	b.CancelledAt = timePtr(cancelledAt)
	b.CompletedAt = timePtr(completed)
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func activeBookings(ctx context.Context, q queryer, serviceID int64, from, to time.Time) ([]model.Booking, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE service_id = ? AND scheduled_at < ? AND end_at > ?
		  AND status IN ('pending', 'confirmed')
		ORDER BY scheduled_at, id`,
		serviceID, to.Unix(), from.Unix())
	if err != nil {
		return nil, fmt.Errorf("active bookings: %w", err)
	}
	return collectBookings(rows)
}

// ActiveBookings returns pending and confirmed bookings of a service whose
// [scheduled_at, end_at) overlaps [from, to).
func (db *DB) ActiveBookings(ctx context.Context, serviceID int64, from, to time.Time) ([]model.Booking, error) {
	return activeBookings(ctx, db.DB, serviceID, from, to)
}

// AllocateBooking inserts b after check approved the day's state. The
// schedule and the active bookings overlapping [dayStart, dayEnd) are read inside the
// same write transaction, so no concurrent writer can slip in between.
func (db *DB) AllocateBooking(
	ctx context.Context,
	b *model.Booking,
	dayStart, dayEnd time.Time,
	check CapacityCheck,
) (*model.Booking, error) {
	created := *b

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		av, err := loadSchedule(ctx, tx, b.ServiceID)
		if err != nil {
			return err
		}

		active, err := activeBookings(ctx, tx, b.ServiceID, dayStart, dayEnd)
		if err != nil {
			return err
		}

		if err := check(av, active); err != nil {
			return err
		}

		now := time.Now().UTC()
		created.CreatedAt = now
		created.UpdatedAt = now
		created.Version = 1
		if created.Status == model.StatusConfirmed && created.ConfirmedAt == nil {
			created.ConfirmedAt = &now
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (
				service_id, tariff_id, client_id, scheduled_at, end_at, duration_minutes,
				status, price_paid, client_note, confirmed_at, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			created.ServiceID, created.TariffID, created.ClientID,
			created.ScheduledAt.Unix(), created.EndAt.Unix(), created.DurationMinutes,
			string(created.Status), created.PricePaid, created.ClientNote, nullTime(created.ConfirmedAt),
			now, now, 1,
		)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}

		created.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created.ScheduledAt = created.ScheduledAt.UTC()
	created.EndAt = created.EndAt.UTC()
	return &created, nil
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// UpdateBookingStatus applies ch if the booking is still at expectedVersion.
func (db *DB) UpdateBookingStatus(ctx context.Context, id, expectedVersion int64, ch model.StatusChange) (*model.Booking, error) {
	at := ch.At.UTC()
	sets := []string{"status = ?", "updated_at = ?", "version = version + 1"}
	args := []any{string(ch.To), at}

	switch ch.To {
	case model.StatusConfirmed:
		sets = append(sets, "confirmed_at = ?")
		args = append(args, at)
	case model.StatusCancelled:
		sets = append(sets, "cancelled_at = ?", "cancelled_by = ?")
		var by sql.NullInt64
		if ch.ActorID != nil {
			by = sql.NullInt64{Int64: *ch.ActorID, Valid: true}
		}
		args = append(args, at, by)
	case model.StatusCompleted:
		sets = append(sets, "completed_at = ?")
		args = append(args, at)
	}
	if ch.ProviderNote != nil {
		sets = append(sets, "provider_note = ?")
		args = append(args, *ch.ProviderNote)
	}
	if ch.CancelReason != nil {
		sets = append(sets, "cancel_reason = ?")
		args = append(args, *ch.CancelReason)
	}
	args = append(args, id, expectedVersion)

	res, err := db.ExecContext(ctx,
		`UPDATE bookings SET `+strings.Join(sets, ", ")+` WHERE id = ? AND version = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", classify(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := db.GetBooking(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("booking %d: %w", id, ErrConcurrentModification)
	}

	return db.GetBooking(ctx, id)
}

// SetChatRoom stores the external chat room of a booking.
func (db *DB) SetChatRoom(ctx context.Context, id int64, roomID string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET chat_room_id = ?, updated_at = ?
		WHERE id = ?`, roomID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set chat room: %w", classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return nil
}

// DueForCompletion returns confirmed bookings whose end_at <= now.
func (db *DB) DueForCompletion(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'confirmed' AND end_at <= ?
		ORDER BY end_at, id LIMIT ?`, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("due bookings: %w", err)
	}
	return collectBookings(rows)
}

// ListBookings returns one page matching f and the total match count.
func (db *DB) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, int, error) {
	where := []string{"1 = 1"}
	var args []any

	if f.ClientID != 0 {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if len(f.ServiceIDs) > 0 {
		where = append(where, "service_id IN ("+placeholders(len(f.ServiceIDs))+")")
		for _, id := range f.ServiceIDs {
			args = append(args, id)
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if !f.From.IsZero() {
		where = append(where, "scheduled_at >= ?")
		args = append(args, f.From.Unix())
	}
	if !f.To.IsZero() {
		where = append(where, "scheduled_at < ?")
		args = append(args, f.To.Unix())
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	order := "ASC"
	if f.Descending {
		order = "DESC"
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + cond +
		` ORDER BY scheduled_at ` + order + `, id ` + order
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	list, err := collectBookings(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
