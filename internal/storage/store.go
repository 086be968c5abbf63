package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
)

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// Store persists decoded records into the events and sensor_values tables.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveEvent(ctx context.Context, ev model.Event) error
	SaveValues(ctx context.Context, v model.Values) error
	RecentEvents(ctx context.Context, limit int) ([]model.Event, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

var identColumns = []string{
	"time", "timezone_offset", "channel_id", "channel_name", "message_id", "bot_name", "device_name",
}

// baseStore holds the SQL shared by both drivers; only the placeholder
// syntax and DDL differ.
type baseStore struct {
	db          *sql.DB
	placeholder func(n int) string
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) insertSQL(table string, columns []string) string {
	marks := make([]string, len(columns))
	for i := range columns {
		marks[i] = b.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(marks, ", "))
}

func identArgs(id model.Identification) []any {
	return []any{
		id.Time.UTC(),
		int64(id.TimezoneOffset / time.Second),
		id.ChannelID,
		id.ChannelName,
		id.MessageID,
		id.BotName,
		id.DeviceName,
	}
}

func (b *baseStore) SaveEvent(ctx context.Context, ev model.Event) error {
	if b.db == nil {
		return nil
	}
	columns := append(append([]string{}, identColumns...), "type", "flag", "text")
	args := append(identArgs(ev.Identification), int(ev.Type), ev.Flag, ev.Text)
	if _, err := b.db.ExecContext(ctx, b.insertSQL("events", columns), args...); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (b *baseStore) SaveValues(ctx context.Context, v model.Values) error {
	if b.db == nil {
		return nil
	}
	columns := append([]string{}, identColumns...)
	args := identArgs(v.Identification)
	for _, f := range model.Fields() {
		columns = append(columns, f.String())
		args = append(args, v.Get(f))
	}
	if _, err := b.db.ExecContext(ctx, b.insertSQL("sensor_values", columns), args...); err != nil {
		return fmt.Errorf("insert values: %w", err)
	}
	return nil
}

func (b *baseStore) RecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT time, timezone_offset, channel_id, channel_name, message_id, bot_name, device_name, type, flag, text
		FROM events ORDER BY id DESC LIMIT %s`, b.placeholder(1))
	rows, err := b.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var (
			ts                           any
			offset, channelID, messageID sql.NullInt64
			channelName, botName, device sql.NullString
			kind                         sql.NullInt64
			flag, text                   sql.NullString
		)
		if err := rows.Scan(&ts, &offset, &channelID, &channelName, &messageID, &botName, &device, &kind, &flag, &text); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		when, err := scanTime(ts)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Event{
			Identification: model.Identification{
				Time:           when,
				TimezoneOffset: time.Duration(offset.Int64) * time.Second,
				ChannelID:      channelID.Int64,
				ChannelName:    channelName.String,
				MessageID:      messageID.Int64,
				BotName:        botName.String,
				DeviceName:     device.String,
			},
			Type: model.EventType(kind.Int64),
			Flag: flag.String,
			Text: text.String,
		})
	}
	return out, rows.Err()
}

var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// scanTime accepts whatever the driver hands back for a DATETIME column.
func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case nil:
		return time.Time{}, nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case []byte:
		return parseStoredTime(string(t))
	case string:
		return parseStoredTime(t)
	default:
		return time.Time{}, fmt.Errorf("unexpected time column type %T", v)
	}
}

func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable stored time %q", s)
}

func execAll(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
