package aippt

import (
	"fmt"

	"github.com/k1LoW/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "aippt"

type metrics struct {
	slidesAssembled   *prometheus.CounterVec
	contentDropped    *prometheus.CounterVec
	templateFallbacks *prometheus.CounterVec
	textOverflows     prometheus.Counter
	poolExhausted     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		slidesAssembled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "slides_assembled_total",
			Help:      "Number of slides assembled, by slide type.",
		}, []string{"type"}),
		contentDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "content_dropped_total",
			Help:      "Number of content entries that found no placeholder, by slide type.",
		}, []string{"type"}),
		templateFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "template_fallback_total",
			Help:      "Number of slides assembled from a generic template, by requested slide type.",
		}, []string{"type"}),
		textOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "text_overflow_total",
			Help:      "Number of placeholders whose text overflows at the minimum font size.",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "image_pool_exhausted_total",
			Help:      "Number of image placeholders left untouched because the image pool was empty.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.slidesAssembled, err = register(reg, m.slidesAssembled); err != nil {
		return nil, err
	}
	if m.contentDropped, err = register(reg, m.contentDropped); err != nil {
		return nil, err
	}
	if m.templateFallbacks, err = register(reg, m.templateFallbacks); err != nil {
		return nil, err
	}
	if m.textOverflows, err = register(reg, m.textOverflows); err != nil {
		return nil, err
	}
	if m.poolExhausted, err = register(reg, m.poolExhausted); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c on reg, reusing the collector already registered under the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}
