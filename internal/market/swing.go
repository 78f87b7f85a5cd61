package market

import "adaptive-trading-bot/internal/broker"

// SwingPoint is a locally extreme price level.
type SwingPoint struct {
	Price    float64
	BarIndex int
}

// FindSwingHighs identifies bars that are the highest within lookback bars on
// both sides.
func FindSwingHighs(bars []broker.Bar, lookback int) []SwingPoint {
	if lookback <= 0 {
		lookback = 5
	}
	var swings []SwingPoint
	for i := lookback; i < len(bars)-lookback; i++ {
		high := bars[i].High
		isSwing := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && bars[j].High >= high {
				isSwing = false
				break
			}
		}
		if isSwing {
			swings = append(swings, SwingPoint{Price: high, BarIndex: i})
		}
	}
	return swings
}

// FindSwingLows identifies bars that are the lowest within lookback bars on
// both sides.
func FindSwingLows(bars []broker.Bar, lookback int) []SwingPoint {
	if lookback <= 0 {
		lookback = 5
	}
	var swings []SwingPoint
	for i := lookback; i < len(bars)-lookback; i++ {
		low := bars[i].Low
		isSwing := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && bars[j].Low <= low {
				isSwing = false
				break
			}
		}
		if isSwing {
			swings = append(swings, SwingPoint{Price: low, BarIndex: i})
		}
	}
	return swings
}

// LatestSwing returns the most recent swing point, or false when none exists.
func LatestSwing(swings []SwingPoint) (SwingPoint, bool) {
	if len(swings) == 0 {
		return SwingPoint{}, false
	}
	return swings[len(swings)-1], true
}

// CountHigherHighs counts successive swing highs above their predecessor.
func CountHigherHighs(swings []SwingPoint) int {
	count := 0
	for i := 1; i < len(swings); i++ {
		if swings[i].Price > swings[i-1].Price {
			count++
		}
	}
	return count
}

// CountLowerHighs counts successive swing highs below their predecessor.
func CountLowerHighs(swings []SwingPoint) int {
	count := 0
	for i := 1; i < len(swings); i++ {
		if swings[i].Price < swings[i-1].Price {
			count++
		}
	}
	return count
}

// CountHigherLows counts successive swing lows above their predecessor.
func CountHigherLows(swings []SwingPoint) int {
	count := 0
	for i := 1; i < len(swings); i++ {
		if swings[i].Price > swings[i-1].Price {
			count++
		}
	}
	return count
}

// CountLowerLows counts successive swing lows below their predecessor.
func CountLowerLows(swings []SwingPoint) int {
	count := 0
	for i := 1; i < len(swings); i++ {
		if swings[i].Price < swings[i-1].Price {
			count++
		}
	}
	return count
}
