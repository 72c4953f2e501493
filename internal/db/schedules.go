package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/model"
)

// GetSchedule returns the weekly template of a service.
func (db *DB) GetSchedule(ctx context.Context, serviceID int64) (*model.WeeklyAvailability, error) {
	return loadSchedule(ctx, db.DB, serviceID)
}

func loadSchedule(ctx context.Context, q queryer, serviceID int64) (*model.WeeklyAvailability, error) {
	av := &model.WeeklyAvailability{ServiceID: serviceID}

	err := q.QueryRowContext(ctx, `
		SELECT slot_duration, break_minutes, max_bookings_per_day, version, updated_at
		FROM schedules WHERE service_id = ?`, serviceID,
	).Scan(&av.SlotDurationMinutes, &av.BreakMinutes, &av.MaxBookingsPerDay, &av.Version, &av.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule of service %d: %w", serviceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	dayRows, err := q.QueryContext(ctx, `
		SELECT day_of_week, enabled FROM schedule_days WHERE service_id = ?`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get schedule days: %w", err)
	}
	for dayRows.Next() {
		var dow int
		var enabled bool
		if err := dayRows.Scan(&dow, &enabled); err != nil {
			dayRows.Close()
			return nil, err
		}
		if dow >= 0 && dow <= 6 {
			av.Days[dow].Enabled = enabled
		}
	}
	dayRows.Close()
	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT day_of_week, start_time, end_time FROM schedule_windows
		WHERE service_id = ? ORDER BY day_of_week, position`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get schedule windows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dow int
		var w model.TimeWindow
		if err := rows.Scan(&dow, &w.Start, &w.End); err != nil {
			return nil, err
		}
		if dow >= 0 && dow <= 6 {
			av.Days[dow].Windows = append(av.Days[dow].Windows, w)
		}
	}
	return av, rows.Err()
}

// ReplaceSchedule stores av as the complete template of its service. When
// expectedVersion is non-zero it must match the stored version, otherwise
// ErrConcurrentModification is returned and nothing changes.
func (db *DB) ReplaceSchedule(ctx context.Context, av *model.WeeklyAvailability, expectedVersion int64) (*model.WeeklyAvailability, error) {
	now := time.Now().UTC()
	saved := *av

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM schedules WHERE service_id = ?`, av.ServiceID,
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read version: %w", err)
		}
		if expectedVersion != 0 && expectedVersion != current {
			return fmt.Errorf("schedule version %d, expected %d: %w", current, expectedVersion, ErrConcurrentModification)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO schedules (service_id, slot_duration, break_minutes, max_bookings_per_day, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(service_id) DO UPDATE SET
				slot_duration = excluded.slot_duration,
				break_minutes = excluded.break_minutes,
				max_bookings_per_day = excluded.max_bookings_per_day,
				version = excluded.version,
				updated_at = excluded.updated_at`,
			av.ServiceID, av.SlotDurationMinutes, av.BreakMinutes, av.MaxBookingsPerDay, current+1, now,
		)
		if err != nil {
			return fmt.Errorf("upsert schedule: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_days WHERE service_id = ?`, av.ServiceID); err != nil {
			return fmt.Errorf("clear days: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_windows WHERE service_id = ?`, av.ServiceID); err != nil {
			return fmt.Errorf("clear windows: %w", err)
		}

		for dow, day := range av.Days {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schedule_days (service_id, day_of_week, enabled) VALUES (?, ?, ?)`,
				av.ServiceID, dow, day.Enabled,
			); err != nil {
				return fmt.Errorf("insert day %d: %w", dow, err)
			}
			for pos, w := range day.Windows {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO schedule_windows (service_id, day_of_week, position, start_time, end_time)
					VALUES (?, ?, ?, ?, ?)`,
					av.ServiceID, dow, pos, w.Start, w.End,
				); err != nil {
					return fmt.Errorf("insert window %d/%d: %w", dow, pos, err)
				}
			}
		}

		saved.Version = current + 1
		saved.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}
