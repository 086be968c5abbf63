package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
)

func openSQLite(t *testing.T) *sqliteStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "sensordata.db")
	st, err := NewSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Init(context.Background()))
	return st.(*sqliteStore)
}

func ident(device string, id int64) model.Identification {
	return model.Identification{
		Time:           time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC),
		TimezoneOffset: -3 * time.Hour,
		ChannelID:      -1001,
		ChannelName:    "Poços",
		MessageID:      id,
		BotName:        "gw-01",
		DeviceName:     device,
	}
}

func TestSQLiteEventsRoundTrip(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	first := model.Event{Identification: ident("P1", 1), Type: model.EventLevel, Flag: "⬆", Text: "P1: ⬆\nnível alto"}
	second := model.Event{Identification: ident("P2", 2), Type: model.EventCommunication, Flag: "⚠️", Text: "P2: ⚠️\ncomunicação"}
	require.NoError(t, st.SaveEvent(ctx, first))
	require.NoError(t, st.SaveEvent(ctx, second))

	events, err := st.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second, events[0])
	assert.Equal(t, first, events[1])

	events, err = st.RecentEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "P2", events[0].DeviceName)
}

func TestSQLiteValuesStoresNullForAbsentFields(t *testing.T) {
	st := openSQLite(t)
	ctx := context.Background()
	v := model.Values{Identification: ident("P1", 3)}
	require.NoError(t, v.SetDecimal(model.FieldLevel, 3.2))
	require.NoError(t, v.SetInteger(model.FieldDigitalInput, 1))
	require.NoError(t, st.SaveValues(ctx, v))

	var (
		level        sql.NullFloat64
		snr          sql.NullInt64
		digitalInput sql.NullInt64
		offset       int64
		device       string
	)
	row := st.db.QueryRowContext(ctx, `SELECT level, snr, digital_input, timezone_offset, device_name FROM sensor_values`)
	require.NoError(t, row.Scan(&level, &snr, &digitalInput, &offset, &device))
	assert.Equal(t, sql.NullFloat64{Float64: 3.2, Valid: true}, level)
	assert.False(t, snr.Valid)
	assert.Equal(t, sql.NullInt64{Int64: 1, Valid: true}, digitalInput)
	assert.Equal(t, int64(-3*3600), offset)
	assert.Equal(t, "P1", device)
}

func TestNewStore(t *testing.T) {
	st, err := NewStore(config.StorageConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = NewStore(config.StorageConfig{Enabled: true, Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestPostgresPlaceholders(t *testing.T) {
	st, err := NewPostgres("")
	require.NoError(t, err)
	defer st.Close()
	got := st.(*postgresStore).insertSQL("events", []string{"a", "b", "c"})
	assert.Equal(t, "INSERT INTO events (a, b, c) VALUES ($1, $2, $3)", got)
}

func TestScanTime(t *testing.T) {
	want := time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)
	for _, in := range []any{
		want,
		"2024-05-10 12:30:00+00:00",
		[]byte("2024-05-10T12:30:00Z"),
		int64(1715344200),
	} {
		got, err := scanTime(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%v -> %v", in, got)
	}
	_, err := scanTime("not a time")
	assert.Error(t, err)
}
