package patterns

import "adaptive-trading-bot/internal/broker"

// Continuation formations are anchored at the tail: the consolidation leg
// must end on the latest bar for the formation to count as current.

// bullishFlag looks for a strong up leg followed by a shallow downward or
// sideways drift over the final FlagBars bars.
func (d *Detector) bullishFlag(bars []broker.Bar) (float64, bool) {
	pole, flag, ok := d.splitPoleFlag(bars)
	if !ok {
		return 0, false
	}

	poleHeight := pole[len(pole)-1].Close - pole[0].Open
	if poleHeight <= 0 || bullishShare(pole) < 0.6 {
		return 0, false
	}

	flagStart := flag[0].High
	flagEnd := flag[len(flag)-1].Low
	if flagEnd > flagStart {
		return 0, false
	}
	if flagStart-flagEnd > poleHeight*0.5 {
		return 0, false
	}
	return 0.70, true
}

func (d *Detector) bearishFlag(bars []broker.Bar) (float64, bool) {
	pole, flag, ok := d.splitPoleFlag(bars)
	if !ok {
		return 0, false
	}

	poleHeight := pole[0].Open - pole[len(pole)-1].Close
	if poleHeight <= 0 || bearishShare(pole) < 0.6 {
		return 0, false
	}

	flagStart := flag[0].Low
	flagEnd := flag[len(flag)-1].High
	if flagEnd < flagStart {
		return 0, false
	}
	if flagEnd-flagStart > poleHeight*0.5 {
		return 0, false
	}
	return 0.70, true
}

func (d *Detector) splitPoleFlag(bars []broker.Bar) (pole, flag []broker.Bar, ok bool) {
	need := d.config.PoleBars + d.config.FlagBars
	if len(bars) < need {
		return nil, nil, false
	}
	tail := bars[len(bars)-need:]
	return tail[:d.config.PoleBars], tail[d.config.PoleBars:], true
}

// ascendingTriangle wants flat highs and rising lows over the last
// TriangleBars bars.
func (d *Detector) ascendingTriangle(bars []broker.Bar) (float64, bool) {
	tail, ok := d.triangleTail(bars)
	if !ok {
		return 0, false
	}
	highs, lows := extractLevels(tail)

	if !flatLine(highs, d.config.FlatTolerance) {
		return 0, false
	}
	if !rising(lows) {
		return 0, false
	}
	return 0.72, true
}

func (d *Detector) descendingTriangle(bars []broker.Bar) (float64, bool) {
	tail, ok := d.triangleTail(bars)
	if !ok {
		return 0, false
	}
	highs, lows := extractLevels(tail)

	if !flatLine(lows, d.config.FlatTolerance) {
		return 0, false
	}
	if !falling(highs) {
		return 0, false
	}
	return 0.72, true
}

func (d *Detector) triangleTail(bars []broker.Bar) ([]broker.Bar, bool) {
	if len(bars) < d.config.TriangleBars {
		return nil, false
	}
	return bars[len(bars)-d.config.TriangleBars:], true
}

func extractLevels(bars []broker.Bar) (highs, lows []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}
	return highs, lows
}

func bullishShare(bars []broker.Bar) float64 {
	count := 0
	for _, b := range bars {
		if bullishBar(b) {
			count++
		}
	}
	return float64(count) / float64(len(bars))
}

func bearishShare(bars []broker.Bar) float64 {
	count := 0
	for _, b := range bars {
		if bearishBar(b) {
			count++
		}
	}
	return float64(count) / float64(len(bars))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// flatLine checks relative variance against the level itself.
func flatLine(values []float64, tolerance float64) bool {
	avg := mean(values)
	if avg == 0 {
		return false
	}
	var variance float64
	for _, v := range values {
		diff := (v - avg) / avg
		variance += diff * diff
	}
	variance /= float64(len(values))
	return variance <= tolerance
}

func rising(values []float64) bool {
	if len(values) < 2 {
		return false
	}
	return mean(values[len(values)/2:]) > mean(values[:len(values)/2])
}

func falling(values []float64) bool {
	if len(values) < 2 {
		return false
	}
	return mean(values[len(values)/2:]) < mean(values[:len(values)/2])
}
