package aippt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/k1LoW/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrEmptyTemplatePool is returned when a slide type required by the content has no template.
var ErrEmptyTemplatePool = errors.New("empty template pool")

// Assembler populates catalog templates with content items.
type Assembler struct {
	catalog    *Catalog
	logger     *slog.Logger
	rng        *rand.Rand
	seed       *int64
	registerer prometheus.Registerer
	measurer   Measurer
	rules      []Rule

	fitter  *Fitter
	metrics *metrics
}

type Option func(*Assembler) error

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) error {
		a.logger = logger
		return nil
	}
}

// WithRand shares rng between every session of the assembler.
func WithRand(rng *rand.Rand) Option {
	return func(a *Assembler) error {
		if rng == nil {
			return fmt.Errorf("random source is nil")
		}
		a.rng = rng
		return nil
	}
}

// WithSeed gives every session its own random source seeded with seed.
func WithSeed(seed int64) Option {
	return func(a *Assembler) error {
		a.seed = &seed
		return nil
	}
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *Assembler) error {
		a.registerer = reg
		return nil
	}
}

func WithMeasurer(m Measurer) Option {
	return func(a *Assembler) error {
		a.measurer = m
		return nil
	}
}

func WithRules(rules []Rule) Option {
	return func(a *Assembler) error {
		if err := validateRules(rules); err != nil {
			return err
		}
		a.rules = rules
		return nil
	}
}

// New creates a new Assembler for catalog.
func New(catalog *Catalog, opts ...Option) (_ *Assembler, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	if catalog == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	a := &Assembler{
		catalog: catalog,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.measurer == nil {
		a.measurer = getDefaultMeasurer()
	}
	a.fitter = NewFitter(a.measurer)
	a.metrics, err = newMetrics(a.registerer)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NewSession starts a deck build consuming images.
func (a *Assembler) NewSession(images []PoolImage) *Session {
	rng := a.rng
	switch {
	case a.seed != nil:
		rng = rand.New(rand.NewSource(*a.seed)) //nolint:gosec
	case rng == nil:
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
	return &Session{
		a:        a,
		rng:      rng,
		pool:     NewImagePool(images),
		poolSize: len(images),
		report: &Report{
			Dropped:   map[SlideType]int{},
			Fallbacks: map[SlideType]int{},
		},
	}
}

// Build assembles items into slides in one session. A missing base template pool fails the whole build.
func (a *Assembler) Build(ctx context.Context, items []Item, images []PoolImage) (_ Slides, _ *Report, err error) {
	defer func() {
		err = errors.WithStack(err)
	}()
	if err := a.catalog.Validate(); err != nil {
		return nil, nil, err
	}
	s := a.NewSession(images)
	for _, item := range items {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		if _, err := s.Add(item); err != nil {
			return nil, nil, err
		}
	}
	report := s.Report()
	a.logger.Info("build completed", slog.Int("slides", report.Slides), slog.Int("items", report.Items))
	return s.Slides(), report, nil
}
