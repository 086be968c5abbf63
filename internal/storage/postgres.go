package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/sensorlog?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return execAll(ctx, s.db, []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ,
			timezone_offset INTEGER,
			channel_id BIGINT,
			channel_name TEXT,
			message_id BIGINT,
			bot_name TEXT,
			device_name TEXT,
			type INTEGER,
			flag TEXT,
			text TEXT,
			timestamp TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_time ON events(time)`,
		`CREATE TABLE IF NOT EXISTS sensor_values (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ,
			timezone_offset INTEGER,
			channel_id BIGINT,
			channel_name TEXT,
			message_id BIGINT,
			bot_name TEXT,
			device_name TEXT,
			level DOUBLE PRECISION,
			raw_level DOUBLE PRECISION,
			distance DOUBLE PRECISION,
			t0 DOUBLE PRECISION,
			t1 DOUBLE PRECISION,
			v0 DOUBLE PRECISION,
			v1 DOUBLE PRECISION,
			snr INTEGER,
			rssi INTEGER,
			snr_gw INTEGER,
			rssi_gw INTEGER,
			speed1 INTEGER,
			speed2 INTEGER,
			counter BIGINT,
			digital_input SMALLINT,
			timestamp TIMESTAMPTZ DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sensor_values_device_time ON sensor_values(device_name, time)`,
	})
}
