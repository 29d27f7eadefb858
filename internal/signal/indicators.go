// Package signal turns OHLCV bar history into directional trading signals.
// The quantitative scoring path is pure; only the optional advisory
// refinement performs I/O.
package signal

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"

	"tradepilot/internal/types"
)

const (
	emaFastPeriod = 21
	emaMidPeriod  = 50
	emaSlowPeriod = 200
	rsiPeriod     = 14
	rocPeriod     = 9
	atrPeriod     = 14
	volumeWindow  = 20
)

// MinBars is the minimum history required; the slow EMA needs a full 200-bar
// seed before its values mean anything.
const MinBars = 200

// computeIndicators derives the four normalized sub-scores (-1..+1 each)
// from a chronological bar series. Pure function of its input.
func computeIndicators(bars []types.Bar) types.IndicatorSnapshot {
	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}
	lastClose := closes[n-1]

	rsi := lastValid(talib.Rsi(closes, rsiPeriod))
	_, _, macdHist := talib.Macd(closes, 12, 26, 9)
	hist := lastValid(macdHist)
	roc := lastValid(talib.Roc(closes, rocPeriod))
	atrSeries := talib.Atr(highs, lows, closes, atrPeriod)
	atr := lastValid(atrSeries)

	emaFast := lastValid(talib.Ema(closes, emaFastPeriod))
	emaMid := lastValid(talib.Ema(closes, emaMidPeriod))
	emaSlow := lastValid(talib.Ema(closes, emaSlowPeriod))

	obv := talib.Obv(closes, volumes)

	momentum := momentumScore(rsi, hist, roc, atr)
	trend := trendScore(lastClose, emaFast, emaMid, emaSlow)
	volatility := volatilityScore(atrSeries, closes)
	volume := volumeScore(obv, volumes)

	return types.IndicatorSnapshot{
		Momentum:   round4(momentum),
		Trend:      round4(trend),
		Volatility: round4(volatility),
		Volume:     round4(volume),
		Raw: map[string]float64{
			"rsi":       round4(rsi),
			"macd_hist": round4(hist),
			"roc":       round4(roc),
			"atr":       round4(atr),
			"ema_fast":  round4(emaFast),
			"ema_mid":   round4(emaMid),
			"ema_slow":  round4(emaSlow),
			"close":     round4(lastClose),
		},
	}
}

// momentumScore averages RSI distance from neutral, ATR-normalized MACD
// histogram, and rate of change.
func momentumScore(rsi, macdHist, roc, atr float64) float64 {
	rsiScore := clamp((rsi - 50) / 50)
	macdScore := 0.0
	if atr > 0 {
		macdScore = clamp(macdHist / atr)
	}
	rocScore := clamp(roc / 10)
	return clamp((rsiScore + macdScore + rocScore) / 3)
}

// trendScore grades the EMA stack: price above the fast EMA, fast above mid,
// mid above slow. A fully aligned uptrend scores +1, the inverse -1.
func trendScore(close, emaFast, emaMid, emaSlow float64) float64 {
	if emaFast == 0 || emaMid == 0 || emaSlow == 0 {
		return 0
	}
	score := 0.0
	if close > emaFast {
		score += 0.25
	} else {
		score -= 0.25
	}
	if emaFast > emaMid {
		score += 0.35
	} else {
		score -= 0.35
	}
	if emaMid > emaSlow {
		score += 0.40
	} else {
		score -= 0.40
	}
	return clamp(score)
}

// volatilityScore compares the current ATR ratio against the series median:
// calm regimes score positive, expanding volatility scores negative, and a
// reading at twice the median bottoms out at -1.
func volatilityScore(atrSeries, closes []float64) float64 {
	ratios := make([]float64, 0, len(atrSeries))
	for i := range atrSeries {
		v := atrSeries[i]
		if math.IsNaN(v) || v <= 0 || closes[i] <= 0 {
			continue
		}
		ratios = append(ratios, v/closes[i])
	}
	if len(ratios) < atrPeriod {
		return 0
	}
	current := ratios[len(ratios)-1]
	med := median(ratios)
	if med <= 0 {
		return 0
	}
	return clamp(1 - current/med)
}

// volumeScore measures OBV drift across the recent window, normalized by the
// total volume traded in that window so the result is naturally in -1..+1.
func volumeScore(obv, volumes []float64) float64 {
	n := len(obv)
	if n <= volumeWindow {
		return 0
	}
	drift := obv[n-1] - obv[n-1-volumeWindow]
	total := 0.0
	for _, v := range volumes[n-volumeWindow:] {
		total += v
	}
	if total <= 0 {
		return 0
	}
	return clamp(drift / total)
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10000) / 10000
}
