package market

import "adaptive-trading-bot/internal/broker"

// VolumeTrend labels the direction of recent volume.
type VolumeTrend string

const (
	VolumeRising  VolumeTrend = "rising"
	VolumeFalling VolumeTrend = "falling"
	VolumeFlat    VolumeTrend = "flat"
)

// VolumeConfirmation is the volume analyzer's verdict for one cycle: a
// pass/fail plus a confidence delta the fusion engine applies to the
// technical signal.
type VolumeConfirmation struct {
	Ratio           float64     `json:"ratio"` // Current vs average volume
	Trend           VolumeTrend `json:"trend"`
	OBVDivergence   bool        `json:"obv_divergence"` // Price and OBV disagree
	Confirmed       bool        `json:"confirmed"`
	ConfidenceDelta float64     `json:"confidence_delta"`
}

// VolumeConfig holds volume analyzer thresholds.
type VolumeConfig struct {
	AvgPeriod        int     `json:"avg_period"`        // Default 20
	ConfirmRatio     float64 `json:"confirm_ratio"`     // Default 1.2
	TrendSplitFactor float64 `json:"trend_split_factor"` // Default 0.15
}

// DefaultVolumeConfig returns standard thresholds.
func DefaultVolumeConfig() *VolumeConfig {
	return &VolumeConfig{
		AvgPeriod:        20,
		ConfirmRatio:     1.2,
		TrendSplitFactor: 0.15,
	}
}

// VolumeAnalyzer derives volume confirmation from a snapshot.
type VolumeAnalyzer struct {
	config *VolumeConfig
}

// NewVolumeAnalyzer creates an analyzer with the given thresholds.
func NewVolumeAnalyzer(config *VolumeConfig) *VolumeAnalyzer {
	if config == nil {
		config = DefaultVolumeConfig()
	}
	return &VolumeAnalyzer{config: config}
}

// OBV calculates On-Balance Volume over the full series.
func OBV(bars []broker.Bar) float64 {
	obv := 0.0
	for i := 1; i < len(bars); i++ {
		if bars[i].Close > bars[i-1].Close {
			obv += bars[i].Volume
		} else if bars[i].Close < bars[i-1].Close {
			obv -= bars[i].Volume
		}
	}
	return obv
}

// Analyze produces the volume confirmation verdict.
//
// Confirmation passes when current volume runs at or above ConfirmRatio times
// the trailing average and volume is not falling. OBV divergence (price up
// while OBV down over the averaging window, or the inverse) subtracts
// confidence even when the ratio passes.
func (va *VolumeAnalyzer) Analyze(bars []broker.Bar) *VolumeConfirmation {
	if len(bars) < 2 {
		return &VolumeConfirmation{Trend: VolumeFlat}
	}

	period := va.config.AvgPeriod
	if len(bars) < period {
		period = len(bars)
	}

	avg := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		avg += bars[i].Volume
	}
	avg /= float64(period)

	current := bars[len(bars)-1].Volume
	ratio := 0.0
	if avg > 0 {
		ratio = current / avg
	}

	trend := va.volumeTrend(bars, period)
	divergence := va.obvDivergence(bars, period)

	confirmed := ratio >= va.config.ConfirmRatio && trend != VolumeFalling

	delta := 0.0
	switch {
	case confirmed && !divergence:
		delta = 0.05
		if ratio >= 2.0 {
			delta = 0.10
		}
	case divergence:
		delta = -0.10
	case trend == VolumeFalling:
		delta = -0.05
	}

	return &VolumeConfirmation{
		Ratio:           ratio,
		Trend:           trend,
		OBVDivergence:   divergence,
		Confirmed:       confirmed && !divergence,
		ConfidenceDelta: delta,
	}
}

// volumeTrend compares the two halves of the averaging window.
func (va *VolumeAnalyzer) volumeTrend(bars []broker.Bar, period int) VolumeTrend {
	if period < 4 {
		return VolumeFlat
	}
	recent := bars[len(bars)-period:]
	mid := period / 2

	firstHalf := 0.0
	secondHalf := 0.0
	for i := 0; i < mid; i++ {
		firstHalf += recent[i].Volume
	}
	for i := mid; i < period; i++ {
		secondHalf += recent[i].Volume
	}
	firstHalf /= float64(mid)
	secondHalf /= float64(period - mid)

	if firstHalf == 0 {
		return VolumeFlat
	}
	change := (secondHalf - firstHalf) / firstHalf
	switch {
	case change > va.config.TrendSplitFactor:
		return VolumeRising
	case change < -va.config.TrendSplitFactor:
		return VolumeFalling
	default:
		return VolumeFlat
	}
}

// obvDivergence reports whether price direction and OBV direction disagree
// over the window.
func (va *VolumeAnalyzer) obvDivergence(bars []broker.Bar, period int) bool {
	if len(bars) < period+1 {
		return false
	}
	window := bars[len(bars)-period-1:]
	priceChange := window[len(window)-1].Close - window[0].Close
	obv := OBV(window)

	return (priceChange > 0 && obv < 0) || (priceChange < 0 && obv > 0)
}
