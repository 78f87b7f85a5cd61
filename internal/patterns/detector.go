// Package patterns detects candlestick reversal and continuation formations
// on recent bars. Detection is anchored to the tail of the series: the engine
// only cares about formations that completed on the latest bars, both as an
// optional entry signal and as input to take-profit extension.
package patterns

import (
	"math"
	"time"

	"adaptive-trading-bot/internal/broker"
)

// Kind identifies a formation.
type Kind string

const (
	// Reversal formations.
	MorningStar      Kind = "morning_star"
	EveningStar      Kind = "evening_star"
	Hammer           Kind = "hammer"
	ShootingStar     Kind = "shooting_star"
	BullishEngulfing Kind = "bullish_engulfing"
	BearishEngulfing Kind = "bearish_engulfing"
	BullishHarami    Kind = "bullish_harami"
	BearishHarami    Kind = "bearish_harami"
	DragonflyDoji    Kind = "dragonfly_doji"
	GravestoneDoji   Kind = "gravestone_doji"

	// Continuation formations.
	BullishFlag        Kind = "bullish_flag"
	BearishFlag        Kind = "bearish_flag"
	AscendingTriangle  Kind = "ascending_triangle"
	DescendingTriangle Kind = "descending_triangle"
)

// Bias is the directional implication of a formation.
type Bias string

const (
	Bullish Bias = "bullish"
	Bearish Bias = "bearish"
)

// Pattern is one detected formation.
type Pattern struct {
	Kind       Kind      `json:"kind"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Bias       Bias      `json:"bias"`
	Confidence float64   `json:"confidence"` // 0 to 1
	BarIndex   int       `json:"bar_index"`  // Index of the completing bar
	DetectedAt time.Time `json:"detected_at"`
}

// Continuation reports whether the formation continues an existing trend
// rather than reversing it.
func (p *Pattern) Continuation() bool {
	switch p.Kind {
	case BullishFlag, BearishFlag, AscendingTriangle, DescendingTriangle:
		return true
	}
	return false
}

// Config tunes the geometric thresholds.
type Config struct {
	LongBodyFrac  float64 `json:"long_body_frac"`  // Body vs range for a "long" candle. Default 0.6
	StarBodyFrac  float64 `json:"star_body_frac"`  // Middle-candle body vs first body. Default 0.4
	WickRatio     float64 `json:"wick_ratio"`      // Dominant wick vs body for hammers. Default 2.0
	DojiBodyFrac  float64 `json:"doji_body_frac"`  // Body vs range for a doji. Default 0.1
	PoleBars      int     `json:"pole_bars"`       // Trend leg length before a flag. Default 10
	FlagBars      int     `json:"flag_bars"`       // Consolidation length. Default 5
	TriangleBars  int     `json:"triangle_bars"`   // Triangle formation length. Default 10
	FlatTolerance float64 `json:"flat_tolerance"`  // Variance vs level for a flat trendline. Default 0.0004
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() *Config {
	return &Config{
		LongBodyFrac:  0.6,
		StarBodyFrac:  0.4,
		WickRatio:     2.0,
		DojiBodyFrac:  0.1,
		PoleBars:      10,
		FlagBars:      5,
		TriangleBars:  10,
		FlatTolerance: 0.0004,
	}
}

// Detector scans bar series for formations.
type Detector struct {
	config *Config
}

// NewDetector creates a detector.
func NewDetector(config *Config) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Detector{config: config}
}

// Detect returns the formations that complete on the final bar of the series.
func (d *Detector) Detect(symbol, timeframe string, bars []broker.Bar) []Pattern {
	if len(bars) == 0 {
		return nil
	}
	var found []Pattern
	add := func(kind Kind, bias Bias, confidence float64) {
		last := len(bars) - 1
		found = append(found, Pattern{
			Kind:       kind,
			Symbol:     symbol,
			Timeframe:  timeframe,
			Bias:       bias,
			Confidence: confidence,
			BarIndex:   last,
			DetectedAt: bars[last].OpenTime,
		})
	}

	d.detectReversals(bars, add)

	if flag, ok := d.bullishFlag(bars); ok {
		add(BullishFlag, Bullish, flag)
	}
	if flag, ok := d.bearishFlag(bars); ok {
		add(BearishFlag, Bearish, flag)
	}
	if tri, ok := d.ascendingTriangle(bars); ok {
		add(AscendingTriangle, Bullish, tri)
	}
	if tri, ok := d.descendingTriangle(bars); ok {
		add(DescendingTriangle, Bearish, tri)
	}
	return found
}

func (d *Detector) detectReversals(bars []broker.Bar, add func(Kind, Bias, float64)) {
	n := len(bars)
	if n < 2 {
		return
	}
	last, prev := bars[n-1], bars[n-2]

	if n >= 3 {
		c1, c2, c3 := bars[n-3], bars[n-2], bars[n-1]
		if d.isMorningStar(c1, c2, c3) {
			add(MorningStar, Bullish, d.threeCandleConfidence(c1, c3))
		}
		if d.isEveningStar(c1, c2, c3) {
			add(EveningStar, Bearish, d.threeCandleConfidence(c1, c3))
		}
	}

	if d.isHammer(last, prev) {
		add(Hammer, Bullish, 0.65)
	}
	if d.isShootingStar(last, prev) {
		add(ShootingStar, Bearish, 0.65)
	}
	if d.isEngulfing(prev, last, Bullish) {
		add(BullishEngulfing, Bullish, 0.7)
	}
	if d.isEngulfing(prev, last, Bearish) {
		add(BearishEngulfing, Bearish, 0.7)
	}
	if d.isHarami(prev, last, Bullish) {
		add(BullishHarami, Bullish, 0.6)
	}
	if d.isHarami(prev, last, Bearish) {
		add(BearishHarami, Bearish, 0.6)
	}
	if d.isDragonflyDoji(last) {
		add(DragonflyDoji, Bullish, 0.55)
	}
	if d.isGravestoneDoji(last) {
		add(GravestoneDoji, Bearish, 0.55)
	}
}

func body(b broker.Bar) float64      { return math.Abs(b.Close - b.Open) }
func barRange(b broker.Bar) float64  { return b.High - b.Low }
func upperWick(b broker.Bar) float64 { return b.High - math.Max(b.Open, b.Close) }
func lowerWick(b broker.Bar) float64 { return math.Min(b.Open, b.Close) - b.Low }
func bullishBar(b broker.Bar) bool   { return b.Close > b.Open }
func bearishBar(b broker.Bar) bool   { return b.Close < b.Open }

func (d *Detector) longBody(b broker.Bar) bool {
	r := barRange(b)
	return r > 0 && body(b) >= r*d.config.LongBodyFrac
}

func (d *Detector) isMorningStar(c1, c2, c3 broker.Bar) bool {
	if !bearishBar(c1) || !d.longBody(c1) {
		return false
	}
	if body(c2) > body(c1)*d.config.StarBodyFrac {
		return false
	}
	if !bullishBar(c3) || !d.longBody(c3) {
		return false
	}
	return c3.Close >= (c1.Open+c1.Close)/2
}

func (d *Detector) isEveningStar(c1, c2, c3 broker.Bar) bool {
	if !bullishBar(c1) || !d.longBody(c1) {
		return false
	}
	if body(c2) > body(c1)*d.config.StarBodyFrac {
		return false
	}
	if !bearishBar(c3) || !d.longBody(c3) {
		return false
	}
	return c3.Close <= (c1.Open+c1.Close)/2
}

// isHammer requires a dominant lower wick after a down bar.
func (d *Detector) isHammer(b, prev broker.Bar) bool {
	bd := body(b)
	if bd == 0 {
		return false
	}
	if lowerWick(b) < bd*d.config.WickRatio || upperWick(b) > bd*0.3 {
		return false
	}
	return bearishBar(prev)
}

func (d *Detector) isShootingStar(b, prev broker.Bar) bool {
	bd := body(b)
	if bd == 0 {
		return false
	}
	if upperWick(b) < bd*d.config.WickRatio || lowerWick(b) > bd*0.3 {
		return false
	}
	return bullishBar(prev)
}

// isEngulfing requires the second body to fully wrap the first, in the
// direction of the bias.
func (d *Detector) isEngulfing(prev, cur broker.Bar, bias Bias) bool {
	if bias == Bullish {
		return bearishBar(prev) && bullishBar(cur) &&
			cur.Open <= prev.Close && cur.Close >= prev.Open
	}
	return bullishBar(prev) && bearishBar(cur) &&
		cur.Open >= prev.Close && cur.Close <= prev.Open
}

// isHarami is the engulfing inverse: a small second body inside a long first.
func (d *Detector) isHarami(prev, cur broker.Bar, bias Bias) bool {
	if !d.longBody(prev) || body(cur) > body(prev)*0.5 {
		return false
	}
	lo, hi := math.Min(prev.Open, prev.Close), math.Max(prev.Open, prev.Close)
	inside := cur.Open > lo && cur.Open < hi && cur.Close > lo && cur.Close < hi
	if !inside {
		return false
	}
	if bias == Bullish {
		return bearishBar(prev) && bullishBar(cur)
	}
	return bullishBar(prev) && bearishBar(cur)
}

func (d *Detector) isDragonflyDoji(b broker.Bar) bool {
	r := barRange(b)
	if r == 0 || body(b) > r*d.config.DojiBodyFrac {
		return false
	}
	return lowerWick(b) >= r*0.6
}

func (d *Detector) isGravestoneDoji(b broker.Bar) bool {
	r := barRange(b)
	if r == 0 || body(b) > r*d.config.DojiBodyFrac {
		return false
	}
	return upperWick(b) >= r*0.6
}

func (d *Detector) threeCandleConfidence(c1, c3 broker.Bar) float64 {
	confidence := 0.7
	if body(c3) > body(c1)*1.2 {
		confidence += 0.1
	}
	return confidence
}
