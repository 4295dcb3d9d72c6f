package services

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Usage is the token accounting reported by a single remote call.
type Usage struct {
	TextTokens   int64 `json:"text_tokens"`
	ImageTokens  int64 `json:"image_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (u Usage) Total() int64 {
	return u.TextTokens + u.ImageTokens + u.OutputTokens
}

// UsageTotals is a point-in-time copy of the accumulator.
type UsageTotals struct {
	Usage
	Calls int64 `json:"calls"`
}

// UsageAccumulator sums usage across every generation call that shares it.
// It is passed by reference to the client instead of living in a package global.
type UsageAccumulator struct {
	text   atomic.Int64
	image  atomic.Int64
	output atomic.Int64
	calls  atomic.Int64

	tokens *prometheus.CounterVec
	parent *UsageAccumulator
}

func NewUsageAccumulator() *UsageAccumulator {
	return &UsageAccumulator{}
}

// Scoped returns an accumulator that counts its own calls and forwards every Add to a.
// The worker uses one per job to record that job's tokens.
func (a *UsageAccumulator) Scoped() *UsageAccumulator {
	return &UsageAccumulator{parent: a}
}

// WithMetrics registers a tokens counter on reg and mirrors every Add into it.
func (a *UsageAccumulator) WithMetrics(reg prometheus.Registerer) (*UsageAccumulator, error) {
	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tryon",
		Name:      "tokens_total",
		Help:      "Tokens reported by the image generation service.",
	}, []string{"kind"})
	if err := reg.Register(tokens); err != nil {
		return nil, err
	}
	a.tokens = tokens
	return a, nil
}

func (a *UsageAccumulator) Add(u Usage) {
	if a == nil {
		return
	}
	a.text.Add(u.TextTokens)
	a.image.Add(u.ImageTokens)
	a.output.Add(u.OutputTokens)
	a.calls.Add(1)

	if a.tokens != nil {
		a.tokens.WithLabelValues("text").Add(float64(u.TextTokens))
		a.tokens.WithLabelValues("image").Add(float64(u.ImageTokens))
		a.tokens.WithLabelValues("output").Add(float64(u.OutputTokens))
	}
	a.parent.Add(u)
}

func (a *UsageAccumulator) Totals() UsageTotals {
	if a == nil {
		return UsageTotals{}
	}
	return UsageTotals{
		Usage: Usage{
			TextTokens:   a.text.Load(),
			ImageTokens:  a.image.Load(),
			OutputTokens: a.output.Load(),
		},
		Calls: a.calls.Load(),
	}
}
