package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// FusionConfig controls how source signals combine into a decision.
type FusionConfig struct {
	// Weights maps source name to fusion weight. Weights must sum to 1.0
	// across the enabled sources; they are NOT renormalized when a source
	// fails mid-cycle, so a failing source shrinks the reachable score
	// instead of silently inflating the survivors.
	Weights map[string]float64 `json:"weights"`

	ScoreThreshold      float64 `json:"score_threshold"`      // Entry gate on |score|, inclusive. Default 0.3
	ConfidenceThreshold float64 `json:"confidence_threshold"` // Entry gate on confidence, inclusive. Default 0.6
	DisagreePenalty     float64 `json:"disagree_penalty"`     // Confidence multiplier per disagreeing optional source. Default 0.85
}

// DefaultFusionConfig returns the standard fusion parameters for the full
// four-source setup.
func DefaultFusionConfig() *FusionConfig {
	return &FusionConfig{
		Weights: map[string]float64{
			"technical": 0.5,
			"ml":        0.2,
			"pattern":   0.2,
			"sentiment": 0.1,
		},
		ScoreThreshold:      0.3,
		ConfidenceThreshold: 0.6,
		DisagreePenalty:     0.85,
	}
}

// Validate checks the enabled sources' weights sum to 1.
func (c *FusionConfig) Validate(enabled []string) error {
	var sum float64
	for _, name := range enabled {
		w, ok := c.Weights[name]
		if !ok {
			return fmt.Errorf("fusion: no weight configured for source %q", name)
		}
		if w < 0 {
			return fmt.Errorf("fusion: negative weight for source %q", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("fusion: enabled source weights sum to %v, want 1.0", sum)
	}
	return nil
}

// Fuser combines one required source with any number of optional sources.
type Fuser struct {
	config   *FusionConfig
	required Source
	optional []Source
	logger   zerolog.Logger
}

// NewFuser creates a fuser. The required source aborts the symbol's cycle on
// failure; optional sources degrade the decision instead.
func NewFuser(config *FusionConfig, required Source, optional []Source, logger zerolog.Logger) *Fuser {
	if config == nil {
		config = DefaultFusionConfig()
	}
	return &Fuser{
		config:   config,
		required: required,
		optional: optional,
		logger:   logger.With().Str("component", "fusion").Logger(),
	}
}

// SourceNames lists the required source followed by every optional source,
// the set a replacement config's weights must cover.
func (f *Fuser) SourceNames() []string {
	names := []string{f.required.Name()}
	for _, src := range f.optional {
		names = append(names, src.Name())
	}
	return names
}

// SetConfig swaps the fusion parameters. The caller must not be mid-Fuse;
// the engine only calls this at a cycle boundary.
func (f *Fuser) SetConfig(config *FusionConfig) {
	f.config = config
}

// Fuse evaluates every source and combines the results. The returned decision
// is Neutral unless both entry gates pass.
func (f *Fuser) Fuse(ctx context.Context, in *Input) (*Decision, error) {
	d := &Decision{
		Symbol:    in.Snapshot.Symbol,
		Direction: Neutral,
		Time:      time.Now().UTC(),
	}

	tech, err := f.required.Evaluate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("required source %s: %w", f.required.Name(), err)
	}
	d.Signals = append(d.Signals, *tech)
	d.Score = f.weight(tech.Source) * tech.Direction.sign() * tech.Confidence

	for _, src := range f.optional {
		sig, err := src.Evaluate(ctx, in)
		if err != nil {
			// Failed optional sources drop out of the weighted sum without
			// renormalizing the remaining weights.
			f.logger.Warn().Err(err).Str("source", src.Name()).Str("symbol", d.Symbol).
				Msg("optional signal source failed, degrading")
			d.Failed = append(d.Failed, src.Name())
			continue
		}
		d.Signals = append(d.Signals, *sig)
		d.Score += f.weight(sig.Source) * sig.Direction.sign() * sig.Confidence
	}

	direction := Neutral
	if d.Score > 0 {
		direction = Buy
	} else if d.Score < 0 {
		direction = Sell
	}

	d.Confidence = f.confidence(d, direction)

	if direction != Neutral &&
		math.Abs(d.Score) >= f.config.ScoreThreshold &&
		d.Confidence >= f.config.ConfidenceThreshold {
		d.Direction = direction
	}
	return d, nil
}

func (f *Fuser) weight(source string) float64 {
	return f.config.Weights[source]
}

// confidence is the magnitude of the weighted score, discounted once per
// disagreeing optional source. Neutral sources neither support nor disagree.
// Tying confidence to |score| means a lone moderate source cannot clear the
// confidence gate on its own conviction alone.
func (f *Fuser) confidence(d *Decision, direction Direction) float64 {
	if direction == Neutral {
		return 0
	}

	conf := math.Abs(d.Score)

	for _, sig := range d.Signals {
		if sig.Source == f.required.Name() {
			continue
		}
		if sig.Direction != Neutral && sig.Direction != direction {
			conf *= f.config.DisagreePenalty
			d.Degradation++
		}
	}
	return conf
}
