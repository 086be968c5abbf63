package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorlog/internal/config"
	"sensorlog/internal/normalize"
)

func TestParseEnvelope(t *testing.T) {
	p := NewParser(nil)
	line := `{"text":"Nome:\"P1\"\nNível: 2","date":"2024-05-10T12:30:00Z","channel_id":-1001234567890,"channel_name":"Poços","message_id":42,"signature":"gw-01"}`
	msg, err := p.ParseLine(line)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Nome:\"P1\"\nNível: 2", msg.Text)
	assert.Equal(t, time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC), msg.Date)
	assert.Equal(t, int64(-1001234567890), msg.ChannelID)
	assert.Equal(t, "Poços", msg.ChannelName)
	assert.Equal(t, int64(42), msg.MessageID)
	assert.Equal(t, "gw-01", msg.Signature)
}

func TestParseEnvelopeAliasesAndUnixDate(t *testing.T) {
	p := NewParser(nil)
	msg, err := p.ParseBytes([]byte(`{"Message":"hello","ts":1715344200,"chat_id":"-77","id":"9","author":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, time.Unix(1715344200, 0).UTC(), msg.Date)
	assert.Equal(t, int64(-77), msg.ChannelID)
	assert.Equal(t, int64(9), msg.MessageID)
	assert.Equal(t, "x", msg.Signature)
}

func TestParseEnvelopeNaiveDateUsesConfiguredZone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.Timezone = "America/Sao_Paulo"
	p := NewParser(config.NewStaticManager(cfg))
	msg, err := p.ParseLine(`{"text":"x","date":"10/05/2024 09:30:00"}`)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC), msg.Date)
}

func TestParseEnvelopeErrors(t *testing.T) {
	p := NewParser(nil)

	msg, err := p.ParseLine("   ")
	require.NoError(t, err)
	assert.Nil(t, msg)

	_, err = p.ParseLine("plain text line")
	assert.ErrorIs(t, err, ErrNotEnvelope)

	_, err = p.ParseLine(`{"text":`)
	assert.ErrorIs(t, err, ErrNotEnvelope)

	_, err = p.ParseLine(`{"date":"2024-05-10T12:30:00Z"}`)
	assert.ErrorIs(t, err, ErrMissingText)

	_, err = p.ParseLine(`{"text":"x"}`)
	assert.ErrorIs(t, err, normalize.ErrMissingTimestamp)

	_, err = p.ParseLine(`{"text":"x","date":"yesterday"}`)
	assert.ErrorIs(t, err, normalize.ErrInvalidTimestamp)

	_, err = p.ParseLine(`{"text":"x","date":1715344200,"message_id":1.5}`)
	assert.ErrorIs(t, err, ErrNotEnvelope)
}
