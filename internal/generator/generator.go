// Package generator synthesizes clinical alert events and publishes
// them on the broker, both on a randomized schedule and on demand.
package generator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/codeblue/internal/alert"
)

// recentLimit caps the in-memory listing of emitted alerts.
const recentLimit = 100

// Publisher is the slice of the queue transport the generator needs.
// Publish owns its retry budget; an error here means the budget is
// exhausted and the alert is dropped.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Config bounds the randomized emission interval.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
}

// DefaultConfig emits every 10 to 30 seconds.
func DefaultConfig() Config {
	return Config{
		MinInterval: 10 * time.Second,
		MaxInterval: 30 * time.Second,
	}
}

// Generator emits alert events. Periodic emission and Trigger share
// one code path so both show up in Recent and both publish durably.
type Generator struct {
	pub    Publisher
	cfg    Config
	logger log.Logger

	mu     sync.Mutex
	recent []alert.Alert // newest first
}

// New creates a Generator. logger may be nil.
func New(pub Publisher, cfg Config, logger log.Logger) *Generator {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultConfig().MinInterval
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	return &Generator{pub: pub, cfg: cfg, logger: logger}
}

// Run emits alerts at a randomized interval until ctx is done. Publish
// failures are logged and the alert is dropped; the loop keeps going.
func (g *Generator) Run(ctx context.Context) {
	timer := time.NewTimer(g.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := g.Trigger(ctx, ""); err != nil {
				g.logger.Error(ctx, err, "periodic alert dropped")
			}
			timer.Reset(g.nextInterval())
		}
	}
}

// Trigger synthesizes and publishes one alert. An empty type picks one
// at random; a non-empty type must be a known alert type.
func (g *Generator) Trigger(ctx context.Context, typ alert.Type) (alert.Alert, error) {
	if typ == "" {
		typ = alert.Random()
	} else if !alert.Valid(typ) {
		return alert.Alert{}, fmt.Errorf("unknown alert type %q", typ)
	}

	a := alert.Alert{
		ID:        ulid.Make().String(),
		Type:      typ,
		Severity:  alert.SeverityFor(typ),
		PatientID: fmt.Sprintf("P%04d", rand.IntN(10000)),
		Room:      fmt.Sprintf("%d", 100+rand.IntN(400)),
		CreatedAt: time.Now().UTC(),
	}

	if err := g.pub.Publish(ctx, alert.SubjectAlerts, a); err != nil {
		return alert.Alert{}, fmt.Errorf("publish alert %s: %w", a.ID, err)
	}

	g.remember(a)
	g.logger.Info(ctx, "alert published",
		"alert_id", a.ID,
		"type", a.Type,
		"severity", a.Severity,
		"patient_id", a.PatientID,
		"room", a.Room,
	)
	return a, nil
}

func (g *Generator) remember(a alert.Alert) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recent = append([]alert.Alert{a}, g.recent...)
	if len(g.recent) > recentLimit {
		g.recent = g.recent[:recentLimit]
	}
}

// Recent returns the last published alerts, newest first.
func (g *Generator) Recent() []alert.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.recent)
}

func (g *Generator) nextInterval() time.Duration {
	span := g.cfg.MaxInterval - g.cfg.MinInterval
	if span <= 0 {
		return g.cfg.MinInterval
	}
	return g.cfg.MinInterval + rand.N(span)
}
