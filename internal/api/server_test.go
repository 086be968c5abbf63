package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorlog/internal/alerts"
	"sensorlog/internal/config"
	"sensorlog/internal/engine"
	"sensorlog/internal/metrics"
	"sensorlog/internal/model"
)

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeEngine struct {
	resets  int
	updated *config.Config
}

func (f *fakeEngine) Reset()                          { f.resets++ }
func (f *fakeEngine) UpdateConfig(cfg *config.Config) { f.updated = cfg }
func (f *fakeEngine) Status() engine.Status {
	return engine.Status{StartedAt: base, Outcomes: map[string]int64{engine.OutcomeValues: 2}}
}

type dbStub struct{ events []model.Event }

func (d *dbStub) Init(context.Context) error                     { return nil }
func (d *dbStub) Close() error                                   { return nil }
func (d *dbStub) SaveEvent(context.Context, model.Event) error   { return nil }
func (d *dbStub) SaveValues(context.Context, model.Values) error { return nil }
func (d *dbStub) RecentEvents(_ context.Context, limit int) ([]model.Event, error) {
	if limit > 0 && limit < len(d.events) {
		return d.events[:limit], nil
	}
	return d.events, nil
}

type fixture struct {
	handler http.Handler
	cfg     *config.Manager
	devices *metrics.Store
	alerts  *alerts.Store
	engine  *fakeEngine
}

func newFixture() *fixture {
	f := &fixture{
		cfg:     config.NewStaticManager(config.DefaultConfig()),
		devices: metrics.NewStore(10),
		alerts:  alerts.NewStore(10),
		engine:  &fakeEngine{},
	}
	v := model.Values{Identification: model.Identification{Time: base, TimezoneOffset: -3 * time.Hour, DeviceName: "P1"}}
	_ = v.SetDecimal(model.FieldLevel, 3.5)
	f.devices.Update(v)
	for i := 0; i < 3; i++ {
		f.alerts.Add(model.Event{
			Identification: model.Identification{Time: base.Add(time.Duration(i) * time.Minute), DeviceName: "P1", MessageID: int64(i + 1)},
			Type:           model.EventLevel,
			Flag:           "⚠️",
			Text:           "nível alto",
		})
	}
	db := &dbStub{events: []model.Event{{Identification: model.Identification{DeviceName: "P9", MessageID: 99}}}}
	srv := NewServer(f.cfg, Options{
		Devices:   f.devices,
		Alerts:    f.alerts,
		Store:     db,
		Engine:    f.engine,
		Collector: metrics.NewCollector(),
		Version:   "test",
	}, nil)
	f.handler = srv.Handler()
	return f
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestStatus(t *testing.T) {
	f := newFixture()
	rec, out := do(t, f.handler, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "test", out["version"])
	assert.Equal(t, float64(1), out["devices"])
	assert.Equal(t, float64(3), out["events"])
	eng := out["engine"].(map[string]any)
	assert.Equal(t, float64(2), eng["outcomes"].(map[string]any)["values"])

	rec, _ = do(t, f.handler, http.MethodPost, "/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDevices(t *testing.T) {
	f := newFixture()
	rec, out := do(t, f.handler, http.MethodGet, "/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["count"])

	rec, out = do(t, f.handler, http.MethodGet, "/devices/P1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	values := out["values"].(map[string]any)
	assert.Equal(t, 3.5, values["level"])
	assert.Equal(t, float64(-10800), values["timezone_offset"])
	assert.Nil(t, values["rssi"])

	rec, _ = do(t, f.handler, http.MethodGet, "/devices/P2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents(t *testing.T) {
	f := newFixture()
	rec, out := do(t, f.handler, http.MethodGet, "/events?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["count"])
	first := out["events"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(3), first["message_id"], "newest first")

	_, out = do(t, f.handler, http.MethodGet, "/events?since="+base.Add(90*time.Second).Format(time.RFC3339), "")
	assert.Equal(t, float64(1), out["count"])

	rec, _ = do(t, f.handler, http.MethodGet, "/events?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, out = do(t, f.handler, http.MethodGet, "/events?source=db", "")
	assert.Equal(t, float64(1), out["count"])
	first = out["events"].([]any)[0].(map[string]any)
	assert.Equal(t, "P9", first["device_name"])
}

func TestFilterUpdate(t *testing.T) {
	f := newFixture()
	rec, _ := do(t, f.handler, http.MethodPost, "/config/filter",
		`{"channel_ids":[-1001],"require_signature":false,"blocked_signers":[" bot ",""]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{-1001}, f.cfg.Get().Filter.ChannelIDs)
	assert.Equal(t, []string{"bot"}, f.cfg.Get().Filter.BlockedSigners)
	require.NotNil(t, f.engine.updated)
	assert.False(t, f.engine.updated.Filter.RequireSignature)

	_, out := do(t, f.handler, http.MethodGet, "/config/filter", "")
	filter := out["filter"].(map[string]any)
	assert.Equal(t, false, filter["require_signature"])

	rec, _ = do(t, f.handler, http.MethodPost, "/config/filter", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearAndRestart(t *testing.T) {
	f := newFixture()
	rec, _ := do(t, f.handler, http.MethodPost, "/admin/clear", `{"target":"events"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.alerts.Len())
	assert.Len(t, f.devices.Devices(), 1)

	rec, _ = do(t, f.handler, http.MethodPost, "/admin/clear", `{"target":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, f.handler, http.MethodPost, "/admin/restart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.engine.resets)
	assert.Empty(t, f.devices.Devices())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Enabled = false
	assert.Nil(t, Start(context.Background(), config.NewStaticManager(cfg), Options{}, nil))
}
