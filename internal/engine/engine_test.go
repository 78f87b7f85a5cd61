package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/events"
	"adaptive-trading-bot/internal/patterns"
	"adaptive-trading-bot/internal/position"
	"adaptive-trading-bot/internal/regime"
	"adaptive-trading-bot/internal/risk"
	"adaptive-trading-bot/internal/signal"
)

type stubSource struct {
	name string
	sig  *signal.Signal
	err  error
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Evaluate(ctx context.Context, in *signal.Input) (*signal.Signal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sig, nil
}

func trendingBars(n int, start, step float64) []broker.Bar {
	bars := make([]broker.Bar, n)
	t := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range bars {
		bars[i] = broker.Bar{
			OpenTime: t.Add(time.Duration(i) * 15 * time.Minute),
			Open:     price,
			High:     price + step + 0.5,
			Low:      price - 0.5,
			Close:    price + step,
			Volume:   1000,
		}
		price += step
	}
	return bars
}

func testSpec(symbol string) *broker.SymbolSpec {
	return &broker.SymbolSpec{
		Symbol:    symbol,
		TickSize:  0.01,
		TickValue: 0.01,
		MinLot:    0.01,
		MaxLot:    1000,
		LotStep:   0.01,
	}
}

func newTestEngine(cfg *Config, client broker.Client, source signal.Source) *Engine {
	profiles, err := risk.DefaultProfileTable().Validate()
	if err != nil {
		panic(err)
	}
	fusion := &signal.FusionConfig{
		Weights:             map[string]float64{"technical": 1.0},
		ScoreThreshold:      0.3,
		ConfidenceThreshold: 0.6,
		DisagreePenalty:     0.85,
	}
	deps := Dependencies{
		Client:     client,
		Classifier: regime.NewClassifier(nil),
		Profiles:   profiles,
		Sizer:      risk.NewSizer(nil),
		Fuser:      signal.NewFuser(fusion, source, nil, zerolog.Nop()),
		Patterns:   patterns.NewDetector(nil),
		Stops:      position.NewStopManager(nil),
		TPs:        position.NewTPManager(nil),
		Lifecycle:  position.NewLifecycleManager(nil),
		Planner:    position.NewPlanner(nil),
		Bus:        events.NewBus(),
	}
	return New(cfg, deps, zerolog.Nop())
}

func buySource() *stubSource {
	return &stubSource{
		name: "technical",
		sig:  &signal.Signal{Source: "technical", Direction: signal.Buy, Confidence: 0.9},
	}
}

func neutralSource() *stubSource {
	return &stubSource{
		name: "technical",
		sig:  &signal.Signal{Source: "technical", Direction: signal.Neutral, Confidence: 0.2},
	}
}

func TestCycleOpensSplitGroupOnActionableDecision(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2120)
	client.SetSpec(testSpec("BTCUSDT"))

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.MaxPositionsPerSymbol = 5

	e := newTestEngine(cfg, client, buySource())
	e.cycle(context.Background())

	if len(client.Orders) != 3 {
		t.Fatalf("expected 3 split child orders, got %d", len(client.Orders))
	}
	if e.tracker.Count() != 3 {
		t.Fatalf("expected 3 tracked positions, got %d", e.tracker.Count())
	}
	var total float64
	group := ""
	for i, req := range client.Orders {
		if req.Direction != broker.Buy {
			t.Errorf("order %d: direction %s, want buy", i, req.Direction)
		}
		total += req.Quantity
		if i == 0 {
			group = req.Comment
		} else if req.Comment != group {
			t.Errorf("order %d: group %q, want %q", i, req.Comment, group)
		}
	}
	if group == "" {
		t.Error("split orders missing a group id")
	}
	if total <= 0 {
		t.Errorf("total quantity %v, want > 0", total)
	}
}

func TestCycleHoldsOnNeutralDecision(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2120)
	client.SetSpec(testSpec("BTCUSDT"))

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}

	e := newTestEngine(cfg, client, neutralSource())
	e.cycle(context.Background())

	if len(client.Orders) != 0 {
		t.Fatalf("neutral decision placed %d orders", len(client.Orders))
	}
}

func TestCycleSkipsEntryWhenInsufficientHistory(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(20, 2000, 1))
	client.SetPrice("BTCUSDT", 2020)
	client.SetSpec(testSpec("BTCUSDT"))

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}

	e := newTestEngine(cfg, client, buySource())
	e.cycle(context.Background())

	if len(client.Orders) != 0 {
		t.Fatalf("insufficient history still placed %d orders", len(client.Orders))
	}
}

func TestCycleRespectsPositionLimits(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2120)
	client.SetSpec(testSpec("BTCUSDT"))
	client.SeedPosition(broker.PositionRecord{
		Ticket:     500,
		Symbol:     "BTCUSDT",
		Direction:  broker.Buy,
		EntryPrice: 2100,
		Quantity:   1,
		StopLoss:   2090,
		OpenTime:   time.Now().Add(-time.Hour),
	})

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.MaxPositionsPerSymbol = 1

	e := newTestEngine(cfg, client, buySource())
	e.cycle(context.Background())

	if len(client.Orders) != 0 {
		t.Fatalf("symbol at capacity still placed %d orders", len(client.Orders))
	}
	if e.tracker.Count() != 1 {
		t.Fatalf("expected 1 adopted position, got %d", e.tracker.Count())
	}
}

func TestDryRunSuppressesOrders(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2120)
	client.SetSpec(testSpec("BTCUSDT"))

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.DryRun = true

	e := newTestEngine(cfg, client, buySource())
	e.cycle(context.Background())

	if len(client.Orders) != 0 {
		t.Fatalf("dry run placed %d orders", len(client.Orders))
	}
}

func TestReconcileDropsBrokerClosedPositions(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2120)
	client.SetSpec(testSpec("BTCUSDT"))

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}

	e := newTestEngine(cfg, client, neutralSource())
	p := position.NewPosition(broker.PositionRecord{
		Ticket:     777,
		Symbol:     "BTCUSDT",
		Direction:  broker.Buy,
		EntryPrice: 2100,
		Quantity:   1,
		StopLoss:   2090,
		OpenTime:   time.Now().Add(-time.Hour),
	}, 10, "")
	e.tracker.Track(p)

	// The broker reports no such ticket, so one cycle must reap it.
	e.cycle(context.Background())

	if e.tracker.Get(777) != nil {
		t.Fatal("position closed at broker still tracked")
	}
}

func TestManageAppliesBreakevenForProfitablePosition(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2110)
	client.SetSpec(testSpec("BTCUSDT"))
	client.SeedPosition(broker.PositionRecord{
		Ticket:     900,
		Symbol:     "BTCUSDT",
		Direction:  broker.Buy,
		EntryPrice: 2100,
		Quantity:   1,
		StopLoss:   2090,
		TakeProfit: 2150,
		OpenTime:   time.Now().Add(-time.Hour),
	})

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.MaxPositionsPerSymbol = 1

	e := newTestEngine(cfg, client, neutralSource())

	// First cycle adopts the position, second manages it with state in place.
	e.cycle(context.Background())
	e.cycle(context.Background())

	if len(client.Modifications) == 0 {
		t.Fatal("profitable position past breakeven arm saw no stop adjustment")
	}
	p := e.tracker.Get(900)
	if p == nil {
		t.Fatal("position no longer tracked")
	}
	if p.StopLoss <= 2090 {
		t.Errorf("stop %v did not tighten above the initial 2090", p.StopLoss)
	}
	if len(e.RecentAdjustments(10)) == 0 {
		t.Error("adjustment log is empty after a stop change")
	}
}

func TestBreakevenMarksPositionAndMirrorsState(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2110)
	client.SetSpec(testSpec("BTCUSDT"))
	client.SeedPosition(broker.PositionRecord{
		Ticket:     901,
		Symbol:     "BTCUSDT",
		Direction:  broker.Buy,
		EntryPrice: 2100,
		Quantity:   1,
		StopLoss:   2090,
		TakeProfit: 2150,
		OpenTime:   time.Now().Add(-time.Hour),
	})

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}

	e := newTestEngine(cfg, client, neutralSource())
	e.deps.States = database.NewStateStore(nil, zerolog.Nop())

	for i := 0; i < 3; i++ {
		e.cycle(context.Background())
	}

	p := e.tracker.Get(901)
	if p == nil {
		t.Fatal("position no longer tracked")
	}
	if !p.BreakevenApplied {
		t.Fatal("breakeven move applied but position not marked")
	}

	// The move is one-shot: cycles after the first must not repeat it.
	moves := 0
	for _, adj := range e.RecentAdjustments(50) {
		if adj.Kind == position.AdjustBreakeven {
			moves++
		}
	}
	if moves != 1 {
		t.Errorf("breakeven applied %d times, want exactly once", moves)
	}

	// The mirrored state must carry the flag so a restart does not rearm it.
	for _, st := range e.deps.States.LoadAll(context.Background()) {
		if st.Ticket != 901 {
			continue
		}
		if !st.BreakevenApplied {
			t.Error("mirrored state lost the breakeven flag")
		}
		return
	}
	t.Error("no mirrored state found for the position")
}

func TestManagementFailurePublishesRealBrokerHealth(t *testing.T) {
	mock := broker.NewMockClient(10000)
	mock.SetConnectError(broker.ErrConnectivity)
	retryCfg := &broker.RetryConfig{
		CallTimeout:     time.Second,
		MaxAttempts:     1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		DownThreshold:   3,
	}
	client := broker.NewRetryingClient(mock, retryCfg, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}

	e := newTestEngine(cfg, client, neutralSource())

	var mu sync.Mutex
	var statuses []string
	var failures []int
	e.deps.Bus.Subscribe(events.EventBrokerHealth, func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, ev.Data["status"].(string))
		failures = append(failures, ev.Data["consecutive_failures"].(int))
	})

	for i := 0; i < 3; i++ {
		e.cycle(context.Background())
	}

	// Subscribers run on their own goroutines.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(statuses)
		mu.Unlock()
		if n >= 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) < 3 {
		t.Fatalf("got %d broker health events, want one per cycle", len(statuses))
	}
	down := false
	for i, s := range statuses {
		if s == string(broker.HealthDown) && failures[i] >= retryCfg.DownThreshold {
			down = true
		}
	}
	if !down {
		t.Errorf("persistent failures never reported down: statuses %v, failures %v", statuses, failures)
	}
}

func TestPositionsReturnsFrozenCopies(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2110)
	client.SetSpec(testSpec("BTCUSDT"))
	client.SeedPosition(broker.PositionRecord{
		Ticket:     321,
		Symbol:     "BTCUSDT",
		Direction:  broker.Buy,
		EntryPrice: 2100,
		Quantity:   1,
		StopLoss:   2090,
		TakeProfit: 2150,
		OpenTime:   time.Now().Add(-time.Minute),
	})

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}

	e := newTestEngine(cfg, client, neutralSource())
	e.cycle(context.Background())

	published := e.Positions()
	if len(published) != 1 || published[0].Ticket != 321 {
		t.Fatalf("published %d positions, want the one adopted", len(published))
	}
	live := e.tracker.Get(321)
	if live == published[0] {
		t.Fatal("monitoring view aliases the live record")
	}
	before := published[0].StopLoss
	live.StopLoss = before + 1
	if published[0].StopLoss != before {
		t.Error("published copy changed along with the live record")
	}
}

func TestPositionsSafeDuringLiveManagement(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2110)
	client.SetSpec(testSpec("BTCUSDT"))
	client.SeedPosition(broker.PositionRecord{
		Ticket:     322,
		Symbol:     "BTCUSDT",
		Direction:  broker.Buy,
		EntryPrice: 2100,
		Quantity:   1,
		StopLoss:   2090,
		TakeProfit: 2150,
		OpenTime:   time.Now().Add(-time.Hour),
	})

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.CycleInterval = 5 * time.Millisecond

	e := newTestEngine(cfg, client, neutralSource())
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Hammer the monitoring view while the loop adjusts stops. The race
	// detector flags any read of a live record.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(60 * time.Millisecond)
		for time.Now().Before(deadline) {
			for _, p := range e.Positions() {
				_ = p.StopLoss
				_ = p.BreakevenApplied
			}
		}
	}()
	<-done
	e.Stop()

	if len(e.Positions()) != 1 {
		t.Errorf("published %d positions after stop, want 1", len(e.Positions()))
	}
}

func TestApplyConfigTakesEffectNextCycle(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("ETHUSDT", "15m", trendingBars(120, 100, 0.05))
	client.SetPrice("ETHUSDT", 106)
	client.SetSpec(testSpec("ETHUSDT"))

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}

	e := newTestEngine(cfg, client, neutralSource())

	next := DefaultConfig()
	next.Symbols = []string{"ETHUSDT"}
	if err := e.ApplyConfig(next); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if !e.Status().ConfigStaged {
		t.Error("staged config not reported in status")
	}

	e.cycle(context.Background())

	got := e.Config()
	if len(got.Symbols) != 1 || got.Symbols[0] != "ETHUSDT" {
		t.Errorf("config after cycle has symbols %v, want [ETHUSDT]", got.Symbols)
	}
	if e.Status().ConfigStaged {
		t.Error("config still reported staged after cycle")
	}
}

func TestApplyUpdateStagesFusionAndSizing(t *testing.T) {
	e := newTestEngine(DefaultConfig(), broker.NewMockClient(1000), neutralSource())

	err := e.ApplyUpdate(&Update{
		Fusion: &signal.FusionConfig{
			Weights:             map[string]float64{"technical": 1.0},
			ScoreThreshold:      0.4,
			ConfidenceThreshold: 0.7,
			DisagreePenalty:     0.85,
		},
		Sizing: &risk.SizerConfig{BaseRiskPercent: 2.0, MinConfMult: 0.5, MaxConfMult: 1.25},
	})
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if !e.Status().ConfigStaged {
		t.Error("staged update not reported in status")
	}

	e.cycle(context.Background())
	if e.Status().ConfigStaged {
		t.Error("update still reported staged after cycle")
	}
}

func TestApplyUpdateClampsProfileTable(t *testing.T) {
	e := newTestEngine(DefaultConfig(), broker.NewMockClient(1000), neutralSource())

	table := risk.DefaultProfileTable()
	p := table[regime.StrongTrend]
	p.RiskMultiplier = 9.0
	table[regime.StrongTrend] = p

	if err := e.ApplyUpdate(&Update{Profiles: table}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	e.cycle(context.Background())

	got := e.deps.Profiles[regime.StrongTrend]
	if got.RiskMultiplier != risk.MaxRiskMultiplier {
		t.Errorf("risk multiplier = %v, want clamped to %v", got.RiskMultiplier, risk.MaxRiskMultiplier)
	}
}

func TestApplyUpdateRejectsBadWeights(t *testing.T) {
	e := newTestEngine(DefaultConfig(), broker.NewMockClient(1000), neutralSource())
	err := e.ApplyUpdate(&Update{
		Fusion: &signal.FusionConfig{
			Weights:             map[string]float64{"technical": 0.4},
			ScoreThreshold:      0.3,
			ConfidenceThreshold: 0.6,
			DisagreePenalty:     0.85,
		},
	})
	if err == nil {
		t.Fatal("expected weight-sum validation error")
	}
}

func TestApplyUpdateRejectsEmpty(t *testing.T) {
	e := newTestEngine(DefaultConfig(), broker.NewMockClient(1000), neutralSource())
	if err := e.ApplyUpdate(&Update{}); err == nil {
		t.Fatal("expected error for empty update")
	}
}

func TestApplyConfigRejectsInvalid(t *testing.T) {
	e := newTestEngine(DefaultConfig(), broker.NewMockClient(1000), neutralSource())
	bad := DefaultConfig()
	bad.Symbols = nil
	if err := e.ApplyConfig(bad); err == nil {
		t.Fatal("expected validation error for empty symbol list")
	}
}

func TestStartStop(t *testing.T) {
	client := broker.NewMockClient(10000)
	client.SetHistory("BTCUSDT", "15m", trendingBars(120, 2000, 1))
	client.SetPrice("BTCUSDT", 2120)
	client.SetSpec(testSpec("BTCUSDT"))

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.CycleInterval = 10 * time.Millisecond

	e := newTestEngine(cfg, client, neutralSource())
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(context.Background()); err == nil {
		t.Error("second Start did not fail")
	}
	time.Sleep(30 * time.Millisecond)
	e.Stop()

	if e.Status().Running {
		t.Error("engine reports running after Stop")
	}
	if e.Status().Cycles == 0 {
		t.Error("no cycles ran between Start and Stop")
	}
}
