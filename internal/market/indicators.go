package market

import (
	"math"

	"adaptive-trading-bot/internal/broker"
)

// SMA calculates the simple moving average of closes over the trailing period.
func SMA(bars []broker.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// EMA calculates the exponential moving average of closes, seeded with the SMA
// of the first period bars.
func EMA(bars []broker.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	series := emaSeries(closes, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// emaSeries returns the EMA sequence over values, one entry per input value
// from index period-1 onward.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	multiplier := 2.0 / float64(period+1)

	out := make([]float64, 0, len(values)-period+1)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = values[i]*multiplier + ema*(1-multiplier)
		out = append(out, ema)
	}
	return out
}

// RSI calculates the Relative Strength Index over the trailing period.
// Returns 50 (neutral) when there is not enough history.
func RSI(bars []broker.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates the MACD line as fast EMA minus slow EMA and the signal line
// as an EMA of the MACD series.
func MACD(bars []broker.Bar, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(bars) < slowPeriod+signalPeriod {
		return &MACDResult{}
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)
	if len(fast) == 0 || len(slow) == 0 {
		return &MACDResult{}
	}

	// Align the two series on their tails.
	n := len(slow)
	if len(fast) < n {
		n = len(fast)
	}
	macdLine := make([]float64, n)
	for i := 0; i < n; i++ {
		macdLine[i] = fast[len(fast)-n+i] - slow[len(slow)-n+i]
	}

	signal := emaSeries(macdLine, signalPeriod)
	if len(signal) == 0 {
		return &MACDResult{MACD: macdLine[n-1]}
	}

	macd := macdLine[n-1]
	sig := signal[len(signal)-1]
	return &MACDResult{
		MACD:      macd,
		Signal:    sig,
		Histogram: macd - sig,
	}
}

// trueRange returns the true range of bar i given its predecessor.
func trueRange(bars []broker.Bar, i int) float64 {
	high := bars[i].High
	low := bars[i].Low
	prevClose := bars[i-1].Close
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATR calculates the Average True Range over the trailing period.
func ATR(bars []broker.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += trueRange(bars, i)
	}
	return sum / float64(period)
}

// ATRSeries returns the rolling ATR for every bar where it is computable,
// used to compare the current ATR against its own moving average.
func ATRSeries(bars []broker.Bar, period int) []float64 {
	if period <= 0 || len(bars) < period+1 {
		return nil
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars, i))
	}
	out := make([]float64, 0, len(trs)-period+1)
	sum := 0.0
	for i, tr := range trs {
		sum += tr
		if i >= period {
			sum -= trs[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// DMIResult holds the directional movement index family of values.
type DMIResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// DMI calculates +DI, -DI and ADX using Wilder smoothing. ADX measures trend
// strength on a 0-100 scale regardless of direction.
func DMI(bars []broker.Bar, period int) *DMIResult {
	if period <= 0 || len(bars) < 2*period+1 {
		return &DMIResult{}
	}

	n := len(bars)
	plusDM := make([]float64, 0, n-1)
	minusDM := make([]float64, 0, n-1)
	trs := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		upMove := bars[i].High - bars[i-1].High
		downMove := bars[i-1].Low - bars[i].Low

		pdm, mdm := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			pdm = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm = downMove
		}
		plusDM = append(plusDM, pdm)
		minusDM = append(minusDM, mdm)
		trs = append(trs, trueRange(bars, i))
	}

	// Wilder smoothing: seed with the sum of the first period values.
	smPlus := sum(plusDM[:period])
	smMinus := sum(minusDM[:period])
	smTR := sum(trs[:period])

	var dxs []float64
	appendDX := func() {
		if smTR == 0 {
			dxs = append(dxs, 0)
			return
		}
		pdi := 100 * smPlus / smTR
		mdi := 100 * smMinus / smTR
		if pdi+mdi == 0 {
			dxs = append(dxs, 0)
			return
		}
		dxs = append(dxs, 100*math.Abs(pdi-mdi)/(pdi+mdi))
	}
	appendDX()

	for i := period; i < len(trs); i++ {
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		smTR = smTR - smTR/float64(period) + trs[i]
		appendDX()
	}

	// ADX is the Wilder-smoothed average of DX.
	adx := sum(dxs[:period]) / float64(period)
	for i := period; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
	}

	result := &DMIResult{ADX: adx}
	if smTR > 0 {
		result.PlusDI = 100 * smPlus / smTR
		result.MinusDI = 100 * smMinus / smTR
	}
	return result
}

func sum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}

// BollingerResult holds Bollinger Band levels.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger calculates Bollinger Bands around the period SMA.
func Bollinger(bars []broker.Bar, period int, stdDevMultiplier float64) *BollingerResult {
	if period <= 0 || len(bars) < period {
		return &BollingerResult{}
	}

	middle := SMA(bars, period)
	variance := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		diff := bars[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return &BollingerResult{
		Upper:  middle + stdDev*stdDevMultiplier,
		Middle: middle,
		Lower:  middle - stdDev*stdDevMultiplier,
	}
}

// PriceVelocity returns the average absolute close-to-close change per bar
// over the trailing window, a momentum-acceleration input.
func PriceVelocity(bars []broker.Bar, window int) float64 {
	if window <= 0 || len(bars) < window+1 {
		return 0
	}
	total := 0.0
	for i := len(bars) - window; i < len(bars); i++ {
		total += math.Abs(bars[i].Close - bars[i-1].Close)
	}
	return total / float64(window)
}
