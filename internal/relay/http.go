package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
)

// HTTP posts each record as JSON to the URL configured for its kind.
type HTTP struct {
	cfg    config.HTTPRelayConfig
	client *http.Client
}

func NewHTTP(cfg config.HTTPRelayConfig) *HTTP {
	to := cfg.Timeout
	if to <= 0 {
		to = 10 * time.Second
	}
	return &HTTP{cfg: cfg, client: NewHTTPClient(to)}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) url(kind model.RecordKind) string {
	switch kind {
	case model.KindEvent:
		return h.cfg.EventURL
	case model.KindValues:
		return h.cfg.ValuesURL
	default:
		return ""
	}
}

func (h *HTTP) Accepts(kind model.RecordKind) bool {
	return h.url(kind) != ""
}

func (h *HTTP) Send(ctx context.Context, rec model.Record) error {
	url := h.url(rec.Kind)
	if url == "" {
		return nil
	}
	body, err := Encode(rec, false)
	if err != nil {
		return err
	}
	return Retry(ctx, h.cfg.Attempts, 500*time.Millisecond, 5*time.Second, func() error {
		return h.post(ctx, url, body)
	})
}

func (h *HTTP) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("post %s: %s", url, resp.Status)
	default:
		return Permanent(fmt.Errorf("post %s: %s", url, resp.Status))
	}
}
