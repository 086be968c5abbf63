package ingest

import (
	"context"
	"log/slog"
	"time"

	"sensorlog/internal/model"
)

// Source names recorded on every delivered message.
const (
	SourceTelegram  = "telegram"
	SourceREST      = "rest"
	SourceKafka     = "kafka"
	SourceTCPStream = "tcp_stream"
	SourceFileTail  = "file_tail"
)

// deliverLine parses one line-delimited envelope and forwards it. Blank
// lines are skipped; malformed ones are logged and dropped.
func deliverLine(ctx context.Context, parser *Parser, line, source string, out chan<- model.ChannelMessage, logger *slog.Logger) bool {
	msg, err := parser.ParseLine(line)
	if err != nil {
		if logger != nil {
			logger.Warn("envelope rejected", "source", source, "err", err)
		}
		return false
	}
	if msg == nil {
		return false
	}
	msg.Source = source
	return SendNonBlocking(ctx, out, *msg, logger)
}

// SendNonBlocking hands msg to the engine, dropping it when the buffer is full.
func SendNonBlocking(ctx context.Context, out chan<- model.ChannelMessage, msg model.ChannelMessage, logger *slog.Logger) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("message channel full, dropping message", "source", msg.Source, "channel_id", msg.ChannelID, "message_id", msg.MessageID)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
