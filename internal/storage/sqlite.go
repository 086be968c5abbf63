package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:sensordata.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; sqlite serialises anyway.
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db, placeholder: func(int) string { return "?" }}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return execAll(ctx, s.db, []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time DATETIME,
			timezone_offset INTEGER,
			channel_id INTEGER,
			channel_name TEXT,
			message_id INTEGER,
			bot_name TEXT,
			device_name TEXT,
			type INTEGER,
			flag TEXT,
			text TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_time ON events(time)`,
		`CREATE TABLE IF NOT EXISTS sensor_values (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time DATETIME,
			timezone_offset INTEGER,
			channel_id INTEGER,
			channel_name TEXT,
			message_id INTEGER,
			bot_name TEXT,
			device_name TEXT,
			level FLOAT,
			raw_level FLOAT,
			distance FLOAT,
			t0 FLOAT,
			t1 FLOAT,
			v0 FLOAT,
			v1 FLOAT,
			snr INTEGER,
			rssi INTEGER,
			snr_gw INTEGER,
			rssi_gw INTEGER,
			speed1 INTEGER,
			speed2 INTEGER,
			counter INTEGER,
			digital_input INTEGER,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sensor_values_device_time ON sensor_values(device_name, time)`,
	})
}
