package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skywatch-labs/skywatch/internal/model"
)

const weatherColumns = `id, device_name, precipitation, observed_at, latitude, longitude,
	atmospheric_pressure, max_wind_speed, solar_radiation, vapor_pressure, humidity, wind_direction`

const insertWeatherQ = `INSERT INTO weather_data (` + weatherColumns + `)
	VALUES (:id, :device_name, :precipitation, :observed_at, :latitude, :longitude,
	:atmospheric_pressure, :max_wind_speed, :solar_radiation, :vapor_pressure, :humidity, :wind_direction)`

const replaceWeatherQ = `UPDATE weather_data SET
	device_name = :device_name, precipitation = :precipitation, observed_at = :observed_at,
	latitude = :latitude, longitude = :longitude, atmospheric_pressure = :atmospheric_pressure,
	max_wind_speed = :max_wind_speed, solar_radiation = :solar_radiation,
	vapor_pressure = :vapor_pressure, humidity = :humidity, wind_direction = :wind_direction
	WHERE id = :id`

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	sqlx.ExtContext
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// ListWeather returns up to limit records.
func (s *Store) ListWeather(ctx context.Context, limit int) ([]model.Weather, error) {
	records := []model.Weather{}
	q := s.db.Rebind("SELECT " + weatherColumns + " FROM weather_data ORDER BY observed_at DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &records, q, limit); err != nil {
		return nil, fmt.Errorf("list weather: %w", err)
	}
	return records, nil
}

// GetWeather returns a single record by ID.
func (s *Store) GetWeather(ctx context.Context, id string) (*model.Weather, error) {
	return getWeather(ctx, s.db, id)
}

func getWeather(ctx context.Context, db execer, id string) (*model.Weather, error) {
	var w model.Weather
	q := db.Rebind("SELECT " + weatherColumns + " FROM weather_data WHERE id = ?")
	if err := db.GetContext(ctx, &w, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get weather: %w", err)
	}
	return &w, nil
}

// GetWeatherProjection returns only the id, precipitation and coordinates of
// a record.
func (s *Store) GetWeatherProjection(ctx context.Context, id string) (*model.WeatherProjection, error) {
	var p model.WeatherProjection
	q := s.db.Rebind("SELECT id, precipitation, latitude, longitude FROM weather_data WHERE id = ?")
	if err := s.db.GetContext(ctx, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get weather projection: %w", err)
	}
	return &p, nil
}

// CreateWeather inserts a record, generating its ID when empty.
func (s *Store) CreateWeather(ctx context.Context, w *model.Weather) error {
	return insertWeather(ctx, s.db, w)
}

// CreateWeatherBatch inserts all records in one transaction.
func (s *Store) CreateWeatherBatch(ctx context.Context, records []model.Weather) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for i := range records {
			if err := insertWeather(ctx, tx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertWeather(ctx context.Context, db execer, w *model.Weather) error {
	if w.ID == "" {
		w.ID = uuid.Must(uuid.NewV7()).String()
	}
	w.Time = w.Time.UTC()
	if _, err := db.NamedExecContext(ctx, insertWeatherQ, w); err != nil {
		return fmt.Errorf("insert weather: %w", classify(err))
	}
	return nil
}

// ReplaceWeather overwrites every field of an existing record.
func (s *Store) ReplaceWeather(ctx context.Context, w *model.Weather) error {
	return replaceWeather(ctx, s.db, w)
}

// ReplaceWeatherBatch replaces all records in one transaction. A missing ID
// aborts the whole batch with ErrNotFound.
func (s *Store) ReplaceWeatherBatch(ctx context.Context, records []model.Weather) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for i := range records {
			if err := replaceWeather(ctx, tx, &records[i]); err != nil {
				return fmt.Errorf("record %s: %w", records[i].ID, err)
			}
		}
		return nil
	})
}

func replaceWeather(ctx context.Context, db execer, w *model.Weather) error {
	w.Time = w.Time.UTC()
	result, err := db.NamedExecContext(ctx, replaceWeatherQ, w)
	if err != nil {
		return fmt.Errorf("replace weather: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace weather rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateWeather applies a partial update keyed by JSON field name (see
// model.WeatherFields) and returns the updated record.
func (s *Store) UpdateWeather(ctx context.Context, id string, fields map[string]interface{}) (*model.Weather, error) {
	var out *model.Weather
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		w, err := updateWeather(ctx, tx, id, fields)
		out = w
		return err
	})
	return out, err
}

// UpdateWeatherBatch applies partial updates to several records in one
// transaction. updates[i] applies to ids[i].
func (s *Store) UpdateWeatherBatch(ctx context.Context, ids []string, updates []map[string]interface{}) ([]model.Weather, error) {
	if len(ids) != len(updates) {
		return nil, fmt.Errorf("update weather batch: %d ids for %d updates", len(ids), len(updates))
	}
	out := make([]model.Weather, 0, len(ids))
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for i, id := range ids {
			w, err := updateWeather(ctx, tx, id, updates[i])
			if err != nil {
				return fmt.Errorf("record %s: %w", id, err)
			}
			out = append(out, *w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func updateWeather(ctx context.Context, db execer, id string, fields map[string]interface{}) (*model.Weather, error) {
	if len(fields) > 0 {
		// Sort for a deterministic statement.
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		sets := make([]string, 0, len(names))
		args := make([]interface{}, 0, len(names)+1)
		for _, name := range names {
			col, ok := model.WeatherFields[name]
			if !ok {
				return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidField, name)
			}
			v := fields[name]
			if t, ok := v.(time.Time); ok {
				v = t.UTC()
			}
			sets = append(sets, col+" = ?")
			args = append(args, v)
		}
		args = append(args, id)

		q := db.Rebind("UPDATE weather_data SET " + strings.Join(sets, ", ") + " WHERE id = ?")
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			return nil, fmt.Errorf("update weather: %w", err)
		}
	}
	return getWeather(ctx, db, id)
}

// DeleteWeather removes a record and returns what was deleted.
func (s *Store) DeleteWeather(ctx context.Context, id string) (*model.Weather, error) {
	var out *model.Weather
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		w, err := getWeather(ctx, tx, id)
		if err != nil {
			return err
		}
		q := tx.Rebind("DELETE FROM weather_data WHERE id = ?")
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete weather: %w", err)
		}
		out = w
		return nil
	})
	return out, err
}

// DeleteWeatherBatch removes every record whose ID is listed and returns
// how many rows went away. Unknown IDs are ignored.
func (s *Store) DeleteWeatherBatch(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In("DELETE FROM weather_data WHERE id IN (?)", ids)
	if err != nil {
		return 0, fmt.Errorf("build delete weather batch: %w", err)
	}
	result, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("delete weather batch: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
