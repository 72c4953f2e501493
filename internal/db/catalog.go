package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/model"
)

// GetService returns a service by id.
func (db *DB) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var s model.Service
	err := db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, capacity, timezone, is_active
		FROM services WHERE id = ?`, id,
	).Scan(&s.ID, &s.OwnerID, &s.Title, &s.Capacity, &s.Timezone, &s.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &s, nil
}

// ListServicesByOwner returns the ids of the services an owner runs.
func (db *DB) ListServicesByOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM services WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTariff returns a tariff by id.
func (db *DB) GetTariff(ctx context.Context, id int64) (*model.Tariff, error) {
	var t model.Tariff
	err := db.QueryRowContext(ctx, `
		SELECT id, service_id, name, duration_minutes, price, sessions_count, is_default, is_active
		FROM tariffs WHERE id = ?`, id,
	).Scan(&t.ID, &t.ServiceID, &t.Name, &t.DurationMinutes, &t.Price, &t.SessionsCount, &t.IsDefault, &t.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tariff %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tariff: %w", err)
	}
	return &t, nil
}

// ListTariffs returns the tariffs of a service.
func (db *DB) ListTariffs(ctx context.Context, serviceID int64) ([]model.Tariff, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, service_id, name, duration_minutes, price, sessions_count, is_default, is_active
		FROM tariffs WHERE service_id = ? ORDER BY id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list tariffs: %w", err)
	}
	defer rows.Close()

	var out []model.Tariff
	for rows.Next() {
		var t model.Tariff
		if err := rows.Scan(&t.ID, &t.ServiceID, &t.Name, &t.DurationMinutes, &t.Price, &t.SessionsCount, &t.IsDefault, &t.IsActive); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Holidays returns the closed dates of a service in [from, to], global
// holidays included, keyed by "2006-01-02".
func (db *DB) Holidays(ctx context.Context, serviceID int64, from, to time.Time) (map[string]bool, error) {
	return queryHolidays(ctx, db.DB, serviceID, from, to)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryHolidays(ctx context.Context, q queryer, serviceID int64, from, to time.Time) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT date FROM holidays
		WHERE service_id IN (0, ?) AND date BETWEEN ? AND ?`,
		serviceID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out[d] = true
	}
	return out, rows.Err()
}
