package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// snapshotStore persists complete views in a SQLite file. Saving replaces
// whatever snapshot the file held before.
type snapshotStore struct {
	db *sql.DB
}

func openSnapshotStore(ctx context.Context, path string) (*snapshotStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed opening sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := migrateSnapshot(ctx, db); err != nil {
		return nil, errors.Join(fmt.Errorf("failed migrating %q: %w", path, err), db.Close())
	}
	return &snapshotStore{db: db}, nil
}

func migrateSnapshot(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS view_range (
    id          INTEGER PRIMARY KEY CHECK (id = 0),
    start_ns    INTEGER NOT NULL,
    end_ns      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sensors (
    position    INTEGER PRIMARY KEY,
    id          TEXT    NOT NULL UNIQUE,
    name        TEXT    NOT NULL,
    description TEXT    NOT NULL,
    group_name  TEXT    NOT NULL,
    x           REAL    NOT NULL,
    y           REAL    NOT NULL,
    z           REAL    NOT NULL,
    object_id   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS channels (
    position    INTEGER PRIMARY KEY,
    id          TEXT    NOT NULL UNIQUE,
    name        TEXT    NOT NULL,
    description TEXT    NOT NULL,
    type        TEXT    NOT NULL,
    unit        TEXT    NOT NULL,
    min_value   REAL    NOT NULL,
    max_value   REAL    NOT NULL
);
CREATE TABLE IF NOT EXISTS series (
    sensor_id   TEXT    NOT NULL,
    channel_id  TEXT    NOT NULL,
    PRIMARY KEY (sensor_id, channel_id)
);
CREATE TABLE IF NOT EXISTS samples (
    sensor_id   TEXT    NOT NULL,
    channel_id  TEXT    NOT NULL,
    seq         INTEGER NOT NULL,
    ts_unix_ns  INTEGER NOT NULL,
    value       REAL    NOT NULL,
    PRIMARY KEY (sensor_id, channel_id, seq)
);
`)
	return err
}

func (s *snapshotStore) close() error {
	return s.db.Close()
}

func (s *snapshotStore) save(ctx context.Context, view sensors.View) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()
	for _, table := range []string{"view_range", "sensors", "channels", "series", "samples"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed clearing %s: %w", table, err)
		}
	}
	// An empty view has no time range to store.
	if start, end := view.TimeRange(); !start.IsZero() || !end.IsZero() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO view_range (id, start_ns, end_ns) VALUES (0, ?, ?)`,
			start.UnixNano(), end.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed saving time range: %w", err)
		}
	}

	position := 0
	for id, sensor := range view.Sensors().All() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sensors
			    (position, id, name, description, group_name, x, y, z, object_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			position, string(id), sensor.Name, sensor.Description, sensor.GroupName,
			sensor.Location.X, sensor.Location.Y, sensor.Location.Z, sensor.ObjectID,
		); err != nil {
			return fmt.Errorf("failed saving sensor %q: %w", id, err)
		}
		position++
	}
	position = 0
	for id, channel := range view.Channels().All() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO channels
			    (position, id, name, description, type, unit, min_value, max_value)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			position, string(id), channel.Name, channel.Description, channel.Type.String(),
			channel.Unit, channel.Min, channel.Max,
		); err != nil {
			return fmt.Errorf("failed saving channel %q: %w", id, err)
		}
		position++
	}

	insertSeries, err := tx.PrepareContext(ctx, `INSERT INTO series (sensor_id, channel_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed preparing series insert: %w", err)
	}
	defer insertSeries.Close()
	insertSample, err := tx.PrepareContext(ctx,
		`INSERT INTO samples (sensor_id, channel_id, seq, ts_unix_ns, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed preparing sample insert: %w", err)
	}
	defer insertSample.Close()
	for sensorID := range view.Sensors().All() {
		for channelID := range view.Channels().All() {
			samples, ok := view.Samples(sensorID, channelID)
			if !ok {
				continue
			}
			if _, err := insertSeries.ExecContext(ctx, string(sensorID), string(channelID)); err != nil {
				return fmt.Errorf("failed saving series %s/%s: %w", sensorID, channelID, err)
			}
			for i, ts := range samples.Timestamps {
				if _, err := insertSample.ExecContext(ctx,
					string(sensorID), string(channelID), i, ts.UnixNano(), samples.Values[i],
				); err != nil {
					return fmt.Errorf("failed saving sample %s/%s[%d]: %w", sensorID, channelID, i, err)
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed committing snapshot: %w", err)
	}
	return nil
}

func (s *snapshotStore) load(ctx context.Context) (*sensors.MemoryView, error) {
	b := sensors.NewBuilder()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, group_name, x, y, z, object_id
		 FROM sensors ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed querying sensors: %w", err)
	}
	for rows.Next() {
		var id string
		var sensor sensors.Sensor
		if err := rows.Scan(
			&id, &sensor.Name, &sensor.Description, &sensor.GroupName,
			&sensor.Location.X, &sensor.Location.Y, &sensor.Location.Z, &sensor.ObjectID,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed reading sensor: %w", err)
		}
		if err := b.AddSensor(sensors.SensorID(id), sensor); err != nil {
			rows.Close()
			return nil, err
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, fmt.Errorf("failed reading sensors: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, name, description, type, unit, min_value, max_value
		 FROM channels ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed querying channels: %w", err)
	}
	for rows.Next() {
		var id, kind string
		var channel sensors.Channel
		if err := rows.Scan(
			&id, &channel.Name, &channel.Description, &kind,
			&channel.Unit, &channel.Min, &channel.Max,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed reading channel: %w", err)
		}
		if channel.Type, err = sensors.ParseChannelType(kind); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed reading channel %q: %w", id, err)
		}
		if err := b.AddChannel(sensors.ChannelID(id), channel); err != nil {
			rows.Close()
			return nil, err
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, fmt.Errorf("failed reading channels: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT sensor_id, channel_id FROM series`)
	if err != nil {
		return nil, fmt.Errorf("failed querying series: %w", err)
	}
	for rows.Next() {
		var sensorID, channelID string
		if err := rows.Scan(&sensorID, &channelID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed reading series: %w", err)
		}
		if err := b.Declare(sensors.SensorID(sensorID), sensors.ChannelID(channelID)); err != nil {
			rows.Close()
			return nil, err
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, fmt.Errorf("failed reading series: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT sensor_id, channel_id, ts_unix_ns, value
		 FROM samples ORDER BY sensor_id, channel_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed querying samples: %w", err)
	}
	for rows.Next() {
		var sensorID, channelID string
		var ns int64
		var value float64
		if err := rows.Scan(&sensorID, &channelID, &ns, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed reading sample: %w", err)
		}
		if err := b.Append(sensors.SensorID(sensorID), sensors.ChannelID(channelID), time.Unix(0, ns).UTC(), value); err != nil {
			rows.Close()
			return nil, err
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return nil, fmt.Errorf("failed reading samples: %w", err)
	}

	var startNs, endNs int64
	err = s.db.QueryRowContext(ctx, `SELECT start_ns, end_ns FROM view_range WHERE id = 0`).Scan(&startNs, &endNs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed reading time range: %w", err)
	default:
		b.SetTimeRange(time.Unix(0, startNs).UTC(), time.Unix(0, endNs).UTC())
	}
	return b.Build(), nil
}

// SaveSQLite writes view to the SQLite database at path, replacing any
// snapshot already stored there.
func SaveSQLite(ctx context.Context, path string, view sensors.View) error {
	store, err := openSnapshotStore(ctx, path)
	if err != nil {
		return err
	}
	return errors.Join(store.save(ctx, view), store.close())
}

// LoadSQLite reads the snapshot stored at path into a new view.
func LoadSQLite(ctx context.Context, path string) (*sensors.MemoryView, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed opening snapshot: %w", err)
	}
	store, err := openSnapshotStore(ctx, path)
	if err != nil {
		return nil, err
	}
	view, err := store.load(ctx)
	if err := errors.Join(err, store.close()); err != nil {
		return nil, err
	}
	return view, nil
}
