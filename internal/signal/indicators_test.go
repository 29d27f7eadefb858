package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeIndicators_ScoresStayNormalized(t *testing.T) {
	cases := map[string]float64{
		"uptrend":   0.5,
		"downtrend": -0.5,
		"flat":      0,
	}
	for name, drift := range cases {
		t.Run(name, func(t *testing.T) {
			snap := computeIndicators(trendingBars(250, 100, drift))
			for score, v := range map[string]float64{
				"momentum":   snap.Momentum,
				"trend":      snap.Trend,
				"volatility": snap.Volatility,
				"volume":     snap.Volume,
			} {
				assert.GreaterOrEqual(t, v, -1.0, score)
				assert.LessOrEqual(t, v, 1.0, score)
			}
			assert.NotEmpty(t, snap.Raw)
		})
	}
}

func TestTrendScore_AlignedStacks(t *testing.T) {
	assert.Equal(t, 1.0, trendScore(110, 105, 100, 95))
	assert.Equal(t, -1.0, trendScore(90, 95, 100, 105))
	assert.Equal(t, 0.0, trendScore(100, 0, 100, 95), "unseeded EMA yields neutral")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, clamp(3.7))
	assert.Equal(t, -1.0, clamp(-2))
	assert.Equal(t, 0.25, clamp(0.25))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 2, 3}))
	assert.Equal(t, 0.0, median(nil))
}
