// Package ml wraps a pre-trained direction classifier behind a small
// prediction API. The model here is a fixed linear ensemble over extracted
// price features; the engine treats it as an opaque optional signal source
// and degrades without it.
package ml

import (
	"math"
	"sync"
	"time"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/market"
)

// Direction labels for predictions.
const (
	DirectionUp       = "up"
	DirectionDown     = "down"
	DirectionSideways = "sideways"
)

// Features holds the inputs extracted for one prediction.
type Features struct {
	Returns          []float64 // Recent close-to-close returns, percent
	Volatility       float64   // Stddev of returns
	Momentum         float64   // Short-window net return
	RSI              float64
	MACDHistogram    float64
	BollingerPos     float64 // Position within bands, -1 to 1
	VolumeRatio      float64 // Current vs average volume
	TrendStrength    float64 // ADX scaled to 0-1
	TrendDirection   float64 // -1, 0, or 1 from DI dominance
}

// Prediction is the classifier output for one symbol.
type Prediction struct {
	Symbol         string             `json:"symbol"`
	Direction      string             `json:"direction"`
	Confidence     float64            `json:"confidence"` // 0-1
	PredictedMove  float64            `json:"predicted_move"` // Percent
	CurrentPrice   float64            `json:"current_price"`
	PredictionTime time.Time          `json:"prediction_time"`
	Components     map[string]float64 `json:"components"` // Per-head contributions
}

// Config holds the ensemble weights and gates.
type Config struct {
	Enabled             bool    `json:"enabled"`
	MomentumWeight      float64 `json:"momentum_weight"`       // Default 0.3
	MeanReversionWeight float64 `json:"mean_reversion_weight"` // Default 0.2
	VolumeWeight        float64 `json:"volume_weight"`         // Default 0.25
	TrendWeight         float64 `json:"trend_weight"`          // Default 0.25
	MinBars             int     `json:"min_bars"`              // Default 30
	MaxPredictedMove    float64 `json:"max_predicted_move"`    // Percent cap. Default 0.5
}

// DefaultConfig returns the standard ensemble configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:             true,
		MomentumWeight:      0.3,
		MeanReversionWeight: 0.2,
		VolumeWeight:        0.25,
		TrendWeight:         0.25,
		MinBars:             30,
		MaxPredictedMove:    0.5,
	}
}

// Stats tracks outcome accounting for served predictions.
type Stats struct {
	mu      sync.RWMutex
	Total   int
	Correct int
}

// Record adds one resolved prediction outcome.
func (s *Stats) Record(correct bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Total++
	if correct {
		s.Correct++
	}
}

// Accuracy returns the hit rate, or 0 before any outcome resolves.
func (s *Stats) Accuracy() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// Predictor serves direction predictions from snapshots.
type Predictor struct {
	config *Config
	stats  *Stats

	mu    sync.RWMutex
	cache map[string]*Prediction // Latest per symbol
}

// NewPredictor creates a predictor.
func NewPredictor(config *Config) *Predictor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Predictor{
		config: config,
		stats:  &Stats{},
		cache:  make(map[string]*Prediction),
	}
}

// Stats exposes the accuracy counters.
func (p *Predictor) Stats() *Stats { return p.stats }

// Latest returns the most recent prediction for a symbol, or nil.
func (p *Predictor) Latest(symbol string) *Prediction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache[symbol]
}

// Predict classifies the next move for the snapshot's symbol. Returns nil
// when history is too short for the feature window; callers treat that as a
// neutral low-confidence opinion.
func (p *Predictor) Predict(snap *market.Snapshot) *Prediction {
	if snap == nil || len(snap.Bars) < p.config.MinBars {
		return nil
	}

	f := p.extractFeatures(snap)

	components := map[string]float64{
		"momentum":       p.momentumHead(f),
		"mean_reversion": p.meanReversionHead(f),
		"volume":         p.volumeHead(f),
		"trend":          p.trendHead(f),
	}

	combined := components["momentum"]*p.config.MomentumWeight +
		components["mean_reversion"]*p.config.MeanReversionWeight +
		components["volume"]*p.config.VolumeWeight +
		components["trend"]*p.config.TrendWeight

	direction := DirectionSideways
	if combined > 0.1 {
		direction = DirectionUp
	} else if combined < -0.1 {
		direction = DirectionDown
	}

	move := combined * f.Volatility * 2
	if move > p.config.MaxPredictedMove {
		move = p.config.MaxPredictedMove
	} else if move < -p.config.MaxPredictedMove {
		move = -p.config.MaxPredictedMove
	}

	pred := &Prediction{
		Symbol:         snap.Symbol,
		Direction:      direction,
		Confidence:     p.agreement(components),
		PredictedMove:  move,
		CurrentPrice:   snap.Close,
		PredictionTime: time.Now().UTC(),
		Components:     components,
	}

	p.mu.Lock()
	p.cache[snap.Symbol] = pred
	p.mu.Unlock()
	return pred
}

func (p *Predictor) extractFeatures(snap *market.Snapshot) *Features {
	bars := snap.Bars
	window := 20
	if len(bars) < window+1 {
		window = len(bars) - 1
	}

	returns := make([]float64, 0, window)
	for i := len(bars) - window; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev != 0 {
			returns = append(returns, (bars[i].Close-prev)/prev*100)
		}
	}

	f := &Features{
		Returns:    returns,
		Volatility: stddev(returns),
		RSI:        snap.RSI,
	}

	short := 5
	if len(returns) >= short {
		for _, r := range returns[len(returns)-short:] {
			f.Momentum += r
		}
	}

	f.MACDHistogram = snap.MACD.Histogram
	f.BollingerPos = bollingerPosition(snap)
	f.VolumeRatio = volumeRatio(bars, window)
	f.TrendStrength = math.Min(snap.DMI.ADX/50, 1)
	switch {
	case snap.DMI.PlusDI > snap.DMI.MinusDI:
		f.TrendDirection = 1
	case snap.DMI.PlusDI < snap.DMI.MinusDI:
		f.TrendDirection = -1
	}
	return f
}

// momentumHead follows short-window momentum, saturating at one volatility
// unit per bar.
func (p *Predictor) momentumHead(f *Features) float64 {
	if f.Volatility == 0 {
		return 0
	}
	return clamp(f.Momentum/(f.Volatility*5), -1, 1)
}

// meanReversionHead fades RSI and Bollinger extremes.
func (p *Predictor) meanReversionHead(f *Features) float64 {
	var s float64
	switch {
	case f.RSI > 70:
		s -= (f.RSI - 70) / 30
	case f.RSI < 30:
		s += (30 - f.RSI) / 30
	}
	s -= f.BollingerPos * 0.5
	return clamp(s, -1, 1)
}

// volumeHead treats elevated volume as confirmation of the current MACD
// impulse.
func (p *Predictor) volumeHead(f *Features) float64 {
	if f.VolumeRatio < 1.2 {
		return 0
	}
	strength := clamp((f.VolumeRatio-1)/2, 0, 1)
	if f.MACDHistogram > 0 {
		return strength
	}
	if f.MACDHistogram < 0 {
		return -strength
	}
	return 0
}

func (p *Predictor) trendHead(f *Features) float64 {
	return f.TrendDirection * f.TrendStrength
}

// agreement scores how aligned the heads are; unanimous strong heads approach
// 1, a split ensemble approaches 0.
func (p *Predictor) agreement(components map[string]float64) float64 {
	var pos, neg, total float64
	for _, v := range components {
		total += math.Abs(v)
		if v > 0 {
			pos += v
		} else {
			neg -= v
		}
	}
	if total == 0 {
		return 0
	}
	return math.Abs(pos-neg) / total * clamp(total/2, 0, 1)
}

func bollingerPosition(snap *market.Snapshot) float64 {
	width := snap.Bollinger.Upper - snap.Bollinger.Lower
	if width == 0 {
		return 0
	}
	return clamp((snap.Close-snap.Bollinger.Middle)/(width/2), -1, 1)
}

func volumeRatio(bars []broker.Bar, window int) float64 {
	if len(bars) < window || window == 0 {
		return 1
	}
	var sum float64
	for _, b := range bars[len(bars)-window:] {
		sum += b.Volume
	}
	avg := sum / float64(window)
	if avg == 0 {
		return 1
	}
	return bars[len(bars)-1].Volume / avg
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
