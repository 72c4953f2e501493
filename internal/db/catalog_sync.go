package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotbook/internal/config"
)

// SyncCatalog applies catalog.yaml to the database in one transaction.
// It upserts services and tariffs, marks missing ones inactive, and replaces
// the holiday list. Bookings and schedules are never touched.
func (db *DB) SyncCatalog(ctx context.Context, cfg *config.CatalogConfig) error {
	if cfg == nil {
		return fmt.Errorf("catalog config is nil")
	}

	now := time.Now().UTC()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		seenServices := make(map[int64]struct{})
		seenTariffs := make(map[int64]struct{})

		for _, svc := range cfg.Services {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO services (id, owner_id, title, capacity, timezone, is_active, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					owner_id = excluded.owner_id,
					title = excluded.title,
					capacity = excluded.capacity,
					timezone = excluded.timezone,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at`,
				svc.ID, svc.OwnerID, svc.Title, svc.Capacity, svc.Timezone, svc.IsActive, now,
			)
			if err != nil {
				return fmt.Errorf("sync service %d: %w", svc.ID, err)
			}
			seenServices[svc.ID] = struct{}{}

			for _, t := range svc.Tariffs {
				active := t.IsActive == nil || *t.IsActive
				_, err := tx.ExecContext(ctx, `
					INSERT INTO tariffs (id, service_id, name, duration_minutes, price, sessions_count, is_default, is_active)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)
					ON CONFLICT(id) DO UPDATE SET
						service_id = excluded.service_id,
						name = excluded.name,
						duration_minutes = excluded.duration_minutes,
						price = excluded.price,
						sessions_count = excluded.sessions_count,
						is_default = excluded.is_default,
						is_active = excluded.is_active`,
					t.ID, svc.ID, t.Name, t.DurationMinutes, t.Price, t.SessionsCount, t.IsDefault, active,
				)
				if err != nil {
					return fmt.Errorf("sync tariff %d: %w", t.ID, err)
				}
				seenTariffs[t.ID] = struct{}{}
			}
		}

		if err := deactivateMissing(ctx, tx, "services", seenServices); err != nil {
			return err
		}
		if err := deactivateMissing(ctx, tx, "tariffs", seenTariffs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM holidays`); err != nil {
			return fmt.Errorf("clear holidays: %w", err)
		}
		for _, h := range cfg.Holidays {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO holidays (service_id, date, name) VALUES (?, ?, ?)
				ON CONFLICT(service_id, date) DO UPDATE SET name = excluded.name`,
				h.ServiceID, h.Date, h.Name,
			)
			if err != nil {
				return fmt.Errorf("sync holiday %s: %w", h.Date, err)
			}
		}

		return nil
	})
}

// deactivateMissing flags rows of table whose id is absent from seen.
// table is one of a fixed set of internal names, never user input.
func deactivateMissing(ctx context.Context, tx *sql.Tx, table string, seen map[int64]struct{}) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM `+table+` WHERE is_active = 1`)
	if err != nil {
		return err
	}

	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range missing {
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET is_active = 0 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deactivate %s %d: %w", table, id, err)
		}
	}
	return nil
}
