package signal

import (
	"context"
	"fmt"
	"math"

	"adaptive-trading-bot/internal/ai/ml"
	"adaptive-trading-bot/internal/ai/sentiment"
	"adaptive-trading-bot/internal/patterns"
)

// MLSource adapts the direction classifier. A model without enough feature
// history reports a neutral low-confidence opinion rather than failing, so
// fusion proceeds on the remaining sources without a degradation penalty.
type MLSource struct {
	predictor *ml.Predictor
}

// NewMLSource wraps a predictor.
func NewMLSource(predictor *ml.Predictor) *MLSource {
	return &MLSource{predictor: predictor}
}

func (s *MLSource) Name() string { return "ml" }

func (s *MLSource) Evaluate(_ context.Context, in *Input) (*Signal, error) {
	pred := s.predictor.Predict(in.Snapshot)
	if pred == nil {
		return &Signal{Source: s.Name(), Direction: Neutral, Confidence: 0.1, Reason: "insufficient feature history"}, nil
	}

	sig := &Signal{
		Source:     s.Name(),
		Confidence: pred.Confidence,
		Reason:     fmt.Sprintf("model predicts %s move of %.2f%%", pred.Direction, pred.PredictedMove),
	}
	switch pred.Direction {
	case ml.DirectionUp:
		sig.Direction = Buy
	case ml.DirectionDown:
		sig.Direction = Sell
	default:
		sig.Direction = Neutral
	}
	return sig, nil
}

// PatternSource votes the formations that completed on the latest bar.
// Conflicting formations cancel; no formation is a neutral opinion.
type PatternSource struct {
	detector *patterns.Detector
}

// NewPatternSource wraps a detector.
func NewPatternSource(detector *patterns.Detector) *PatternSource {
	return &PatternSource{detector: detector}
}

func (s *PatternSource) Name() string { return "pattern" }

func (s *PatternSource) Evaluate(_ context.Context, in *Input) (*Signal, error) {
	snap := in.Snapshot
	found := s.detector.Detect(snap.Symbol, snap.Timeframe, snap.Bars)
	if len(found) == 0 {
		return &Signal{Source: s.Name(), Direction: Neutral, Confidence: 0, Reason: "no formations"}, nil
	}

	var net, strongest float64
	var best patterns.Kind
	for _, p := range found {
		contribution := p.Confidence
		if p.Bias == patterns.Bearish {
			contribution = -contribution
		}
		net += contribution
		if p.Confidence > strongest {
			strongest = p.Confidence
			best = p.Kind
		}
	}

	sig := &Signal{Source: s.Name(), Direction: Neutral}
	switch {
	case net > 0:
		sig.Direction = Buy
	case net < 0:
		sig.Direction = Sell
	default:
		sig.Reason = "formations conflict"
		return sig, nil
	}
	sig.Confidence = strongest
	sig.Reason = fmt.Sprintf("%d formation(s), strongest %s", len(found), best)
	return sig, nil
}

// SentimentSource converts the cached market mood into a mild directional
// opinion. A missing or stale cache is an error so fusion degrades.
type SentimentSource struct {
	analyzer *sentiment.Analyzer
}

// NewSentimentSource wraps an analyzer.
func NewSentimentSource(analyzer *sentiment.Analyzer) *SentimentSource {
	return &SentimentSource{analyzer: analyzer}
}

func (s *SentimentSource) Name() string { return "sentiment" }

func (s *SentimentSource) Evaluate(_ context.Context, _ *Input) (*Signal, error) {
	score, err := s.analyzer.Current()
	if err != nil {
		return nil, err
	}

	sig := &Signal{Source: s.Name(), Direction: Neutral}
	if extreme, reason := score.Extreme(); extreme {
		// At a mood extreme the feed argues against new entries in either
		// direction; a confident contrarian neutral keeps fusion cautious.
		sig.Confidence = 0
		sig.Reason = reason
		return sig, nil
	}

	switch {
	case score.Value > 0.2:
		sig.Direction = Buy
	case score.Value < -0.2:
		sig.Direction = Sell
	default:
		sig.Reason = "mood neutral"
		return sig, nil
	}
	sig.Confidence = math.Min(1, math.Abs(score.Value))
	sig.Reason = fmt.Sprintf("%s (index %d)", score.Label, score.Index)
	return sig, nil
}
