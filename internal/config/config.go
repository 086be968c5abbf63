package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Ingest   IngestConfig  `json:"ingest" yaml:"ingest"`
	Filter   FilterConfig  `json:"filter" yaml:"filter"`
	Engine   EngineConfig  `json:"engine" yaml:"engine"`
	API      APIConfig     `json:"api" yaml:"api"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Relay    RelayConfig   `json:"relay" yaml:"relay"`
	Devices  StoreConfig   `json:"devices" yaml:"devices"`
	Events   StoreConfig   `json:"events" yaml:"events"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	Timezone      string          `json:"timezone" yaml:"timezone"`
	Telegram      TelegramConfig  `json:"telegram" yaml:"telegram"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
}

type TelegramConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Token       string `json:"token" yaml:"token"`
	APIEndpoint string `json:"api_endpoint" yaml:"api_endpoint"`
	PollTimeout int    `json:"poll_timeout" yaml:"poll_timeout"`
	SkipPending bool   `json:"skip_pending" yaml:"skip_pending"`
	Debug       bool   `json:"debug" yaml:"debug"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// FilterConfig restricts which channel posts reach the decoder.
type FilterConfig struct {
	ChannelIDs       []int64  `json:"channel_ids" yaml:"channel_ids"`
	RequireSignature bool     `json:"require_signature" yaml:"require_signature"`
	BlockedSigners   []string `json:"blocked_signers" yaml:"blocked_signers"`
}

type EngineConfig struct {
	DedupeWindow  time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	StoreTimeout  time.Duration `json:"store_timeout" yaml:"store_timeout"`
	RelayTimeout  time.Duration `json:"relay_timeout" yaml:"relay_timeout"`
	AlertCooldown time.Duration `json:"alert_cooldown" yaml:"alert_cooldown"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type RelayConfig struct {
	HTTP     HTTPRelayConfig  `json:"http" yaml:"http"`
	WhatsApp WhatsAppConfig   `json:"whatsapp" yaml:"whatsapp"`
	Kafka    KafkaRelayConfig `json:"kafka" yaml:"kafka"`
	MQTT     MQTTRelayConfig  `json:"mqtt" yaml:"mqtt"`
}

type HTTPRelayConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	EventURL  string        `json:"event_url" yaml:"event_url"`
	ValuesURL string        `json:"values_url" yaml:"values_url"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	Attempts  int           `json:"attempts" yaml:"attempts"`
}

type WhatsAppConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	APIURL   string        `json:"api_url" yaml:"api_url"`
	Phone    string        `json:"phone" yaml:"phone"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
	Timezone string        `json:"timezone" yaml:"timezone"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

type KafkaRelayConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type MQTTRelayConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Broker      string `json:"broker" yaml:"broker"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	QoS         byte   `json:"qos" yaml:"qos"`
}

type StoreConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

const (
	defaultSQLiteDSN   = "file:sensordata.db?_pragma=busy_timeout(5000)"
	defaultCallMeBot   = "https://api.callmebot.com/whatsapp.php"
	defaultEventURL    = "http://localhost:9001/events"
	defaultValuesURL   = "http://localhost:9001/values"
	defaultMQTTPrefix  = "sensorlog"
	defaultKafkaTopic  = "sensorlog.records"
	defaultPollTimeout = 60
)

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 1000,
			Timezone:      "UTC",
			Telegram:      TelegramConfig{Enabled: false, PollTimeout: defaultPollTimeout},
			REST:          RESTConfig{Enabled: false, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Filter: FilterConfig{RequireSignature: true},
		Engine: EngineConfig{
			DedupeWindow:  10 * time.Minute,
			StoreTimeout:  5 * time.Second,
			RelayTimeout:  30 * time.Second,
			AlertCooldown: 0,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: defaultSQLiteDSN},
		Relay: RelayConfig{
			HTTP: HTTPRelayConfig{
				Enabled:   false,
				EventURL:  defaultEventURL,
				ValuesURL: defaultValuesURL,
				Timeout:   10 * time.Second,
				Attempts:  3,
			},
			WhatsApp: WhatsAppConfig{
				Enabled:  false,
				APIURL:   defaultCallMeBot,
				MaxDelay: 5 * time.Minute,
				Timezone: "America/Sao_Paulo",
				Timeout:  10 * time.Second,
			},
			Kafka: KafkaRelayConfig{Enabled: false, Topic: defaultKafkaTopic},
			MQTT:  MQTTRelayConfig{Enabled: false, ClientID: "sensorlog", TopicPrefix: defaultMQTTPrefix},
		},
		Devices: StoreConfig{StoreLimit: 5000},
		Events:  StoreConfig{StoreLimit: 1000},
	}
}

// Load reads a YAML or JSON config file, then applies environment overrides.
// An empty path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	ApplyEnv(cfg, os.Getenv)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return errors.New("config file is empty")
	}
	if looksLikeJSON(trimmed) {
		err = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		err = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays the environment variables the deployment scripts set.
// Setting a destination also enables the collaborator that uses it.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("SENSORLOG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Ingest.Telegram.Token = v
		cfg.Ingest.Telegram.Enabled = true
	}
	if v := getenv("EVENT_URL"); v != "" {
		cfg.Relay.HTTP.EventURL = v
		cfg.Relay.HTTP.Enabled = true
	}
	if v := getenv("VALUES_URL"); v != "" {
		cfg.Relay.HTTP.ValuesURL = v
		cfg.Relay.HTTP.Enabled = true
	}
	if v := getenv("DB_DRIVER"); v != "" {
		cfg.Storage.Driver = v
		cfg.Storage.Enabled = true
	}
	if v := getenv("DB_NAME"); v != "" {
		if strings.EqualFold(cfg.Storage.Driver, "sqlite") && !strings.HasPrefix(v, "file:") {
			v = "file:" + v + "?_pragma=busy_timeout(5000)"
		}
		cfg.Storage.DSN = v
		cfg.Storage.Enabled = true
	}
	if v := getenv("CALLMEBOT_API_KEY"); v != "" {
		cfg.Relay.WhatsApp.APIKey = v
	}
	if v := getenv("CALLMEBOT_PHONE"); v != "" {
		cfg.Relay.WhatsApp.Phone = v
	}
	if getenv("CALLMEBOT_API_KEY") != "" && getenv("CALLMEBOT_PHONE") != "" {
		cfg.Relay.WhatsApp.Enabled = true
	}
}

// loadFileLayer reads path without the environment overlay.
func loadFileLayer(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// withoutEnv returns a copy of cfg whose env-supplied fields carry the
// file values from base, so saving it never writes credentials to disk.
func withoutEnv(cfg, base *Config, getenv func(string) string) *Config {
	out := *cfg
	if getenv("SENSORLOG_LOG_LEVEL") != "" {
		out.LogLevel = base.LogLevel
	}
	if getenv("TELEGRAM_TOKEN") != "" {
		out.Ingest.Telegram.Token = base.Ingest.Telegram.Token
		out.Ingest.Telegram.Enabled = base.Ingest.Telegram.Enabled
	}
	if getenv("EVENT_URL") != "" {
		out.Relay.HTTP.EventURL = base.Relay.HTTP.EventURL
	}
	if getenv("VALUES_URL") != "" {
		out.Relay.HTTP.ValuesURL = base.Relay.HTTP.ValuesURL
	}
	if getenv("EVENT_URL") != "" || getenv("VALUES_URL") != "" {
		out.Relay.HTTP.Enabled = base.Relay.HTTP.Enabled
	}
	if getenv("DB_DRIVER") != "" {
		out.Storage.Driver = base.Storage.Driver
	}
	if getenv("DB_NAME") != "" {
		out.Storage.DSN = base.Storage.DSN
	}
	if getenv("DB_DRIVER") != "" || getenv("DB_NAME") != "" {
		out.Storage.Enabled = base.Storage.Enabled
	}
	if getenv("CALLMEBOT_API_KEY") != "" {
		out.Relay.WhatsApp.APIKey = base.Relay.WhatsApp.APIKey
	}
	if getenv("CALLMEBOT_PHONE") != "" {
		out.Relay.WhatsApp.Phone = base.Relay.WhatsApp.Phone
	}
	if getenv("CALLMEBOT_API_KEY") != "" && getenv("CALLMEBOT_PHONE") != "" {
		out.Relay.WhatsApp.Enabled = base.Relay.WhatsApp.Enabled
	}
	return &out
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Devices.StoreLimit <= 0 {
		cfg.Devices.StoreLimit = 5000
	}
	if cfg.Events.StoreLimit <= 0 {
		cfg.Events.StoreLimit = 1000
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1000
	}
	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}
	if cfg.Ingest.Telegram.PollTimeout <= 0 {
		cfg.Ingest.Telegram.PollTimeout = defaultPollTimeout
	}
	if cfg.Relay.HTTP.Attempts <= 0 {
		cfg.Relay.HTTP.Attempts = 1
	}
	if cfg.Relay.HTTP.Timeout <= 0 {
		cfg.Relay.HTTP.Timeout = 10 * time.Second
	}
	if cfg.Relay.WhatsApp.APIURL == "" {
		cfg.Relay.WhatsApp.APIURL = defaultCallMeBot
	}
	if cfg.Relay.WhatsApp.MaxDelay <= 0 {
		cfg.Relay.WhatsApp.MaxDelay = 5 * time.Minute
	}
	if cfg.Relay.WhatsApp.Timezone == "" {
		cfg.Relay.WhatsApp.Timezone = "UTC"
	}
	if cfg.Relay.MQTT.TopicPrefix == "" {
		cfg.Relay.MQTT.TopicPrefix = defaultMQTTPrefix
	}
	if cfg.Relay.Kafka.Topic == "" {
		cfg.Relay.Kafka.Topic = defaultKafkaTopic
	}
	if cfg.Engine.StoreTimeout <= 0 {
		cfg.Engine.StoreTimeout = 5 * time.Second
	}
	if cfg.Engine.RelayTimeout <= 0 {
		cfg.Engine.RelayTimeout = 30 * time.Second
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.Telegram.Enabled && cfg.Ingest.Telegram.Token == "" {
		return errors.New("ingest.telegram.token required when ingest.telegram.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if _, err := time.LoadLocation(cfg.Ingest.Timezone); err != nil {
		return fmt.Errorf("ingest.timezone: %w", err)
	}
	if cfg.Relay.HTTP.Enabled && cfg.Relay.HTTP.EventURL == "" && cfg.Relay.HTTP.ValuesURL == "" {
		return errors.New("relay.http requires event_url or values_url")
	}
	if cfg.Relay.WhatsApp.Enabled {
		if cfg.Relay.WhatsApp.Phone == "" || cfg.Relay.WhatsApp.APIKey == "" {
			return errors.New("relay.whatsapp requires phone and api_key")
		}
		if _, err := time.LoadLocation(cfg.Relay.WhatsApp.Timezone); err != nil {
			return fmt.Errorf("relay.whatsapp.timezone: %w", err)
		}
	}
	if cfg.Relay.Kafka.Enabled && len(cfg.Relay.Kafka.Brokers) == 0 {
		return errors.New("relay.kafka requires brokers")
	}
	if cfg.Relay.MQTT.Enabled {
		if cfg.Relay.MQTT.Broker == "" {
			return errors.New("relay.mqtt requires broker")
		}
		if cfg.Relay.MQTT.QoS > 2 {
			return fmt.Errorf("relay.mqtt.qos must be 0, 1 or 2, got %d", cfg.Relay.MQTT.QoS)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime atomic.Int64
	saveMu  sync.Mutex
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	m.markModified()
	return m, nil
}

// NewStaticManager wraps an in-memory config, e.g. for tests.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	m.markModified()
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path == "" {
		m.cfg.Store(cfg)
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	base, err := loadFileLayer(m.path)
	if err != nil {
		return err
	}
	if err := Save(m.path, withoutEnv(cfg, base, os.Getenv)); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	m.markModified()
	return nil
}

func (m *Manager) markModified() {
	if m.path == "" {
		return
	}
	if info, err := os.Stat(m.path); err == nil {
		m.modTime.Store(info.ModTime().UnixNano())
	}
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().UnixNano() > m.modTime.Load(), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}

// Location resolves a timezone name, falling back to UTC.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
