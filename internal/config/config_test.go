package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "sensorlog.yaml", `
log_level: debug
ingest:
  timezone: America/Sao_Paulo
  rest:
    enabled: true
    addr: ":18080"
filter:
  channel_ids: [-1001, -1002]
  require_signature: false
engine:
  dedupe_window: 30s
relay:
  whatsapp:
    enabled: true
    phone: "+5511999999999"
    api_key: "k"
    max_delay: 2m
storage:
  enabled: true
  driver: postgres
  dsn: postgres://localhost/sensorlog
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":18080", cfg.Ingest.REST.Addr)
	assert.Equal(t, []int64{-1001, -1002}, cfg.Filter.ChannelIDs)
	assert.False(t, cfg.Filter.RequireSignature)
	assert.Equal(t, 30*time.Second, cfg.Engine.DedupeWindow)
	assert.Equal(t, 2*time.Minute, cfg.Relay.WhatsApp.MaxDelay)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	// untouched defaults survive
	assert.Equal(t, ":8081", cfg.API.Addr)
	assert.Equal(t, defaultCallMeBot, cfg.Relay.WhatsApp.APIURL)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "sensorlog.json", `{"log_level":"warn","api":{"enabled":false}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.API.Enabled)
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	_, err := Load(writeFile(t, "empty.yaml", "  \n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"telegram without token": func(c *Config) { c.Ingest.Telegram.Enabled = true },
		"kafka without topic":    func(c *Config) { c.Ingest.Kafka = KafkaConfig{Enabled: true, Brokers: []string{"k:9092"}} },
		"whatsapp without key":   func(c *Config) { c.Relay.WhatsApp.Enabled = true; c.Relay.WhatsApp.Phone = "1" },
		"mqtt bad qos":           func(c *Config) { c.Relay.MQTT = MQTTRelayConfig{Enabled: true, Broker: "tcp://b:1883", QoS: 3} },
		"bad timezone":           func(c *Config) { c.Ingest.Timezone = "Mars/Olympus" },
		"file tail without file": func(c *Config) { c.Ingest.FileTail.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TELEGRAM_TOKEN":    "123:abc",
		"EVENT_URL":         "http://relay/events",
		"DB_NAME":           "sensordata.db",
		"CALLMEBOT_API_KEY": "key",
		"CALLMEBOT_PHONE":   "+55",
	}
	cfg := DefaultConfig()
	ApplyEnv(cfg, func(k string) string { return env[k] })

	assert.True(t, cfg.Ingest.Telegram.Enabled)
	assert.Equal(t, "123:abc", cfg.Ingest.Telegram.Token)
	assert.True(t, cfg.Relay.HTTP.Enabled)
	assert.Equal(t, "http://relay/events", cfg.Relay.HTTP.EventURL)
	assert.Equal(t, defaultValuesURL, cfg.Relay.HTTP.ValuesURL)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "file:sensordata.db?_pragma=busy_timeout(5000)", cfg.Storage.DSN)
	assert.True(t, cfg.Relay.WhatsApp.Enabled)
	assert.NoError(t, Validate(cfg))
}

func TestApplyEnvPartialWhatsApp(t *testing.T) {
	cfg := DefaultConfig()
	ApplyEnv(cfg, func(k string) string {
		if k == "CALLMEBOT_PHONE" {
			return "+55"
		}
		return ""
	})
	assert.False(t, cfg.Relay.WhatsApp.Enabled)
	assert.Equal(t, "+55", cfg.Relay.WhatsApp.Phone)
}

func TestManagerReloadAndStaticPath(t *testing.T) {
	path := writeFile(t, "sensorlog.yaml", "log_level: info\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, "info", m.Get().LogLevel)

	next := *m.Get()
	next.LogLevel = "error"
	require.NoError(t, m.Update(&next))
	cfg, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)

	static := NewStaticManager(DefaultConfig())
	needs, err := static.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)
	assert.Error(t, static.Update(nil))
	mem := DefaultConfig()
	mem.LogLevel = "debug"
	require.NoError(t, static.Update(mem))
	assert.Equal(t, "debug", static.Get().LogLevel)
}

func TestUpdateKeepsEnvValuesOffDisk(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "secret-token")
	t.Setenv("CALLMEBOT_API_KEY", "secret-key")
	t.Setenv("CALLMEBOT_PHONE", "+5511000000000")
	path := writeFile(t, "sensorlog.yaml", "log_level: info\nfilter:\n  require_signature: true\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	require.Equal(t, "secret-token", m.Get().Ingest.Telegram.Token)
	require.True(t, m.Get().Relay.WhatsApp.Enabled)

	next := *m.Get()
	next.Filter.ChannelIDs = []int64{-1001}
	require.NoError(t, m.Update(&next))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-token")
	assert.NotContains(t, string(data), "secret-key")
	assert.NotContains(t, string(data), "+5511000000000")

	onDisk, err := loadFileLayer(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{-1001}, onDisk.Filter.ChannelIDs)
	assert.False(t, onDisk.Ingest.Telegram.Enabled)
	assert.False(t, onDisk.Relay.WhatsApp.Enabled)

	assert.Equal(t, "secret-token", m.Get().Ingest.Telegram.Token, "live config keeps env values")
	assert.Equal(t, []int64{-1001}, m.Get().Filter.ChannelIDs)
}

func TestUpdateWhileWatching(t *testing.T) {
	path := writeFile(t, "sensorlog.yaml", "log_level: info\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.Watch(time.Millisecond, func(*Config) {}, func(error) {}, stop)
		close(done)
	}()
	for i := 0; i < 50; i++ {
		next := *m.Get()
		next.Filter.ChannelIDs = []int64{int64(-i)}
		require.NoError(t, m.Update(&next))
		time.Sleep(time.Millisecond)
	}
	close(stop)
	<-done

	needs, err := m.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)
}
