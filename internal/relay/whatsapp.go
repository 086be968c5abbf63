package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
)

const staleLayout = "02/01/2006 15:04:05"

// WhatsApp pushes gateway events to a phone through the CallMeBot API.
type WhatsApp struct {
	cfg    config.WhatsAppConfig
	client *http.Client
	loc    *time.Location
	now    func() time.Time
}

func NewWhatsApp(cfg config.WhatsAppConfig) *WhatsApp {
	to := cfg.Timeout
	if to <= 0 {
		to = 10 * time.Second
	}
	return &WhatsApp{
		cfg:    cfg,
		client: NewHTTPClient(to),
		loc:    config.Location(cfg.Timezone),
		now:    time.Now,
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

func (w *WhatsApp) Accepts(kind model.RecordKind) bool {
	return kind == model.KindEvent
}

// Message formats ev as "*<channel>*\n<text>", appending the send time when
// the event is older than the configured delay.
func (w *WhatsApp) Message(ev model.Event) string {
	msg := fmt.Sprintf("*%s*\n%s", ev.ChannelName, ev.Text)
	if w.now().Sub(ev.Time) > w.cfg.MaxDelay {
		msg += "\n" + ev.Time.In(w.loc).Format(staleLayout)
	}
	return msg
}

func (w *WhatsApp) Send(ctx context.Context, rec model.Record) error {
	if rec.Kind != model.KindEvent || rec.Event == nil {
		return nil
	}
	u, err := url.Parse(w.cfg.APIURL)
	if err != nil {
		return fmt.Errorf("whatsapp api url: %w", err)
	}
	q := u.Query()
	q.Set("phone", w.cfg.Phone)
	q.Set("apikey", w.cfg.APIKey)
	q.Set("text", w.Message(*rec.Event))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("callmebot: %s", resp.Status)
	}
	return nil
}
