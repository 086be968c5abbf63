// Package relay forwards decoded records to downstream systems.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sensorlog/internal/model"
)

var ErrNoRecord = errors.New("record has no payload")

// Relay delivers one record. Implementations must be safe for concurrent use.
type Relay interface {
	Name() string
	Send(ctx context.Context, rec model.Record) error
}

// Selective is implemented by relays that only handle some record kinds.
type Selective interface {
	Accepts(kind model.RecordKind) bool
}

// ResultFunc observes the outcome of each delivery attempt.
type ResultFunc func(name string, err error)

type Fanout struct {
	relays   []Relay
	logger   *slog.Logger
	onResult ResultFunc
}

func NewFanout(logger *slog.Logger, onResult ResultFunc, relays ...Relay) *Fanout {
	f := &Fanout{logger: logger, onResult: onResult}
	for _, r := range relays {
		if r != nil {
			f.relays = append(f.relays, r)
		}
	}
	return f
}

func (f *Fanout) Names() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.relays))
	for _, r := range f.relays {
		out = append(out, r.Name())
	}
	return out
}

func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.relays)
}

// Send delivers rec to every relay that accepts it. One failing relay does
// not stop the others; all failures are joined.
func (f *Fanout) Send(ctx context.Context, rec model.Record) error {
	if f == nil || rec.IsNone() {
		return nil
	}
	var errs []error
	for _, r := range f.relays {
		if s, ok := r.(Selective); ok && !s.Accepts(rec.Kind) {
			continue
		}
		err := r.Send(ctx, rec)
		if f.onResult != nil {
			f.onResult(r.Name(), err)
		}
		if err != nil {
			if f.logger != nil {
				f.logger.Warn("relay failed", "relay", r.Name(), "record", rec.String(), "err", err)
			}
			errs = append(errs, fmt.Errorf("relay %s: %w", r.Name(), err))
			continue
		}
		if f.logger != nil {
			f.logger.Debug("relay delivered", "relay", r.Name(), "record", rec.String())
		}
	}
	return errors.Join(errs...)
}

// Close releases relays holding connections.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, r := range f.relays {
		if c, ok := r.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", r.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
