package services_test

import (
	"strings"
	"sync"
	"testing"

	"tryonapi/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageAccumulatorConcurrentAdds(t *testing.T) {
	usage := services.NewUsageAccumulator()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			usage.Add(services.Usage{TextTokens: 1, ImageTokens: 2, OutputTokens: 3})
		}()
	}
	wg.Wait()

	totals := usage.Totals()
	assert.Equal(t, int64(50), totals.Calls)
	assert.Equal(t, int64(50), totals.TextTokens)
	assert.Equal(t, int64(100), totals.ImageTokens)
	assert.Equal(t, int64(150), totals.OutputTokens)
	assert.Equal(t, int64(300), totals.Total())
}

func TestUsageAccumulatorScoped(t *testing.T) {
	global := services.NewUsageAccumulator()
	global.Add(services.Usage{TextTokens: 10})

	job := global.Scoped()
	job.Add(services.Usage{ImageTokens: 5, OutputTokens: 7})

	assert.Equal(t, services.UsageTotals{Usage: services.Usage{ImageTokens: 5, OutputTokens: 7}, Calls: 1}, job.Totals())
	assert.Equal(t, services.UsageTotals{Usage: services.Usage{TextTokens: 10, ImageTokens: 5, OutputTokens: 7}, Calls: 2}, global.Totals())
}

func TestUsageAccumulatorNil(t *testing.T) {
	var usage *services.UsageAccumulator
	assert.NotPanics(t, func() { usage.Add(services.Usage{TextTokens: 1}) })
	assert.Equal(t, services.UsageTotals{}, usage.Totals())
}

func TestUsageAccumulatorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	usage, err := services.NewUsageAccumulator().WithMetrics(reg)
	require.NoError(t, err)

	usage.Scoped().Add(services.Usage{TextTokens: 3, ImageTokens: 4, OutputTokens: 5})

	expected := `
# HELP tryon_tokens_total Tokens reported by the image generation service.
# TYPE tryon_tokens_total counter
tryon_tokens_total{kind="image"} 4
tryon_tokens_total{kind="output"} 5
tryon_tokens_total{kind="text"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tryon_tokens_total"))

	_, err = services.NewUsageAccumulator().WithMetrics(reg)
	assert.Error(t, err)
}
