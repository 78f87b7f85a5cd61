package market

import (
	"adaptive-trading-bot/internal/broker"
)

// IndicatorConfig holds the periods used to derive indicator columns.
type IndicatorConfig struct {
	FastMAPeriod    int     `json:"fast_ma_period"`    // Default 20
	SlowMAPeriod    int     `json:"slow_ma_period"`    // Default 50
	RSIPeriod       int     `json:"rsi_period"`        // Default 14
	MACDFast        int     `json:"macd_fast"`         // Default 12
	MACDSlow        int     `json:"macd_slow"`         // Default 26
	MACDSignal      int     `json:"macd_signal"`       // Default 9
	ATRPeriod       int     `json:"atr_period"`        // Default 14
	ATRAvgPeriod    int     `json:"atr_avg_period"`    // Default 50, for the volatility ratio
	ADXPeriod       int     `json:"adx_period"`        // Default 14
	BollingerPeriod int     `json:"bollinger_period"`  // Default 20
	BollingerStdDev float64 `json:"bollinger_std_dev"` // Default 2.0
	SwingLookback   int     `json:"swing_lookback"`    // Default 5
}

// DefaultIndicatorConfig returns the standard periods.
func DefaultIndicatorConfig() *IndicatorConfig {
	return &IndicatorConfig{
		FastMAPeriod:    20,
		SlowMAPeriod:    50,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		ATRPeriod:       14,
		ATRAvgPeriod:    50,
		ADXPeriod:       14,
		BollingerPeriod: 20,
		BollingerStdDev: 2.0,
		SwingLookback:   5,
	}
}

// WarmupBars is the minimum bar count for every indicator column to be
// defined. Below this the snapshot is still usable but Sufficient() is false
// and the regime classifier must return its insufficient-data regime.
func (c *IndicatorConfig) WarmupBars() int {
	min := c.SlowMAPeriod
	if v := c.MACDSlow + c.MACDSignal; v > min {
		min = v
	}
	if v := 2*c.ADXPeriod + 1; v > min {
		min = v
	}
	if v := c.ATRPeriod + c.ATRAvgPeriod; v > min {
		min = v
	}
	return min
}

// Snapshot is the per-cycle view of one symbol/timeframe: the OHLCV series
// plus derived indicator values. Immutable once computed; recomputed from
// fresh history every cycle.
type Snapshot struct {
	Symbol    string
	Timeframe string
	Bars      []broker.Bar

	Close           float64
	FastMA          float64
	SlowMA          float64
	RSI             float64
	MACD            *MACDResult
	DMI             *DMIResult
	ATR             float64
	ATRAvg          float64
	VolatilityRatio float64
	Bollinger       *BollingerResult
	OBV             float64

	SwingHighs []SwingPoint
	SwingLows  []SwingPoint

	sufficient bool
}

// NewSnapshot computes a snapshot from bars. Short series are accepted;
// columns that need more history hold their neutral zero values and
// Sufficient() reports false.
func NewSnapshot(symbol, timeframe string, bars []broker.Bar, cfg *IndicatorConfig) *Snapshot {
	if cfg == nil {
		cfg = DefaultIndicatorConfig()
	}

	s := &Snapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		Bars:      bars,
	}
	if len(bars) == 0 {
		return s
	}

	s.Close = bars[len(bars)-1].Close
	s.FastMA = EMA(bars, cfg.FastMAPeriod)
	s.SlowMA = EMA(bars, cfg.SlowMAPeriod)
	s.RSI = RSI(bars, cfg.RSIPeriod)
	s.MACD = MACD(bars, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	s.DMI = DMI(bars, cfg.ADXPeriod)
	s.ATR = ATR(bars, cfg.ATRPeriod)
	s.Bollinger = Bollinger(bars, cfg.BollingerPeriod, cfg.BollingerStdDev)
	s.OBV = OBV(bars)

	atrs := ATRSeries(bars, cfg.ATRPeriod)
	if n := len(atrs); n > 0 {
		window := cfg.ATRAvgPeriod
		if window > n {
			window = n
		}
		total := 0.0
		for _, v := range atrs[n-window:] {
			total += v
		}
		s.ATRAvg = total / float64(window)
	}
	if s.ATRAvg > 0 {
		s.VolatilityRatio = s.ATR / s.ATRAvg
	} else {
		s.VolatilityRatio = 1.0
	}

	s.SwingHighs = FindSwingHighs(bars, cfg.SwingLookback)
	s.SwingLows = FindSwingLows(bars, cfg.SwingLookback)

	s.sufficient = len(bars) >= cfg.WarmupBars()
	return s
}

// Sufficient reports whether every indicator column has left its warm-up
// window.
func (s *Snapshot) Sufficient() bool { return s.sufficient }

// LastBar returns the most recent bar.
func (s *Snapshot) LastBar() broker.Bar {
	if len(s.Bars) == 0 {
		return broker.Bar{}
	}
	return s.Bars[len(s.Bars)-1]
}
