package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
)

func StartFileTail(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.ChannelMessage, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileTail
	if !current.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		go tailFile(ctx, path, current.StartAtEnd, parser, out, logger)
	}
}

// tailFile follows path line by line. A partial trailing line is held until
// its newline arrives; a truncated file is reopened from the start.
func tailFile(ctx context.Context, path string, startAtEnd bool, parser *Parser, out chan<- model.ChannelMessage, logger *slog.Logger) {
	var (
		file    *os.File
		reader  *bufio.Reader
		offset  int64
		pending strings.Builder
	)
	seekEnd := startAtEnd
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()
	for {
		if ctx.Err() != nil {
			return
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file, offset = f, 0
			pending.Reset()
			if seekEnd {
				if pos, err := file.Seek(0, io.SeekEnd); err == nil {
					offset = pos
				}
				seekEnd = false
			}
			reader = bufio.NewReader(file)
		}

		chunk, err := reader.ReadString('\n')
		offset += int64(len(chunk))
		pending.WriteString(chunk)
		if err == nil {
			deliverLine(ctx, parser, pending.String(), SourceFileTail, out, logger)
			pending.Reset()
			continue
		}
		if err != io.EOF {
			if logger != nil {
				logger.Warn("tail read error", "path", path, "err", err)
			}
			_ = file.Close()
			file = nil
			continue
		}
		if !BackoffSleep(ctx, 200*time.Millisecond) {
			return
		}
		if info, statErr := os.Stat(path); statErr == nil && info.Size() < offset {
			if logger != nil {
				logger.Info("tail file truncated, reopening", "path", path)
			}
			_ = file.Close()
			file = nil
		}
	}
}
