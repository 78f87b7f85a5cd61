package signal

import (
	"context"
	"fmt"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/market"
)

// TechnicalConfig tunes the indicator voting thresholds.
type TechnicalConfig struct {
	RSIOverbought float64 `json:"rsi_overbought"` // Default 70
	RSIOversold   float64 `json:"rsi_oversold"`   // Default 30
	RSIBullish    float64 `json:"rsi_bullish"`    // Default 55
	RSIBearish    float64 `json:"rsi_bearish"`    // Default 45
	MinADX        float64 `json:"min_adx"`        // DI vote requires this much trend. Default 15
}

// DefaultTechnicalConfig returns the standard thresholds.
func DefaultTechnicalConfig() *TechnicalConfig {
	return &TechnicalConfig{
		RSIOverbought: 70,
		RSIOversold:   30,
		RSIBullish:    55,
		RSIBearish:    45,
		MinADX:        15,
	}
}

// TechnicalSource is the required signal source. It polls four indicator
// families (MA cross, MACD, RSI, DMI) and votes; confidence is the fraction
// of voters agreeing with the majority, scaled by volume confirmation.
type TechnicalSource struct {
	config *TechnicalConfig
	volume *market.VolumeAnalyzer
}

// NewTechnicalSource creates the technical source.
func NewTechnicalSource(config *TechnicalConfig) *TechnicalSource {
	if config == nil {
		config = DefaultTechnicalConfig()
	}
	return &TechnicalSource{
		config: config,
		volume: market.NewVolumeAnalyzer(nil),
	}
}

func (s *TechnicalSource) Name() string { return "technical" }

// Evaluate votes the indicator families and fuses them into one signal.
func (s *TechnicalSource) Evaluate(_ context.Context, in *Input) (*Signal, error) {
	snap := in.Snapshot
	if snap == nil || !snap.Sufficient() {
		return nil, fmt.Errorf("technical: %w", broker.ErrInsufficientHistory)
	}

	votes := []float64{
		s.maVote(snap),
		s.macdVote(snap),
		s.rsiVote(snap),
		s.diVote(snap),
	}

	var net float64
	var cast int
	for _, v := range votes {
		net += v
		if v != 0 {
			cast++
		}
	}

	sig := &Signal{Source: s.Name(), Direction: Neutral, Confidence: 0}
	if cast == 0 || net == 0 {
		sig.Reason = "indicators mixed"
		return sig, nil
	}

	if net > 0 {
		sig.Direction = Buy
	} else {
		sig.Direction = Sell
		net = -net
	}
	sig.Confidence = net / float64(len(votes))
	sig.Reason = fmt.Sprintf("%d/%d indicators aligned", int(net), len(votes))

	// Volume either confirms or discounts the move.
	vc := s.volume.Analyze(snap.Bars)
	sig.Confidence += vc.ConfidenceDelta
	if sig.Confidence > 1 {
		sig.Confidence = 1
	}
	if sig.Confidence < 0 {
		sig.Confidence = 0
	}
	return sig, nil
}

func (s *TechnicalSource) maVote(snap *market.Snapshot) float64 {
	switch {
	case snap.FastMA > snap.SlowMA && snap.Close > snap.FastMA:
		return 1
	case snap.FastMA < snap.SlowMA && snap.Close < snap.FastMA:
		return -1
	}
	return 0
}

func (s *TechnicalSource) macdVote(snap *market.Snapshot) float64 {
	switch {
	case snap.MACD.MACD > snap.MACD.Signal:
		return 1
	case snap.MACD.MACD < snap.MACD.Signal:
		return -1
	}
	return 0
}

// rsiVote leans with momentum in the middle band and against it at the
// extremes.
func (s *TechnicalSource) rsiVote(snap *market.Snapshot) float64 {
	rsi := snap.RSI
	switch {
	case rsi >= s.config.RSIOverbought:
		return -1
	case rsi <= s.config.RSIOversold:
		return 1
	case rsi > s.config.RSIBullish:
		return 1
	case rsi < s.config.RSIBearish:
		return -1
	}
	return 0
}

func (s *TechnicalSource) diVote(snap *market.Snapshot) float64 {
	if snap.DMI.ADX < s.config.MinADX {
		return 0
	}
	switch {
	case snap.DMI.PlusDI > snap.DMI.MinusDI:
		return 1
	case snap.DMI.PlusDI < snap.DMI.MinusDI:
		return -1
	}
	return 0
}
