package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// positionKeyPrefix keys one position's state: engine:position:{ticket}.
	positionKeyPrefix = "engine:position"
	// positionSetKey holds the set of live tickets for recovery scans.
	positionSetKey = "engine:positions"
	// positionStateTTL keeps stale keys from accumulating if cleanup is
	// missed; open positions are re-saved every cycle.
	positionStateTTL = 7 * 24 * time.Hour
)

// PositionState is the engine-side position metadata mirrored into Redis.
// The broker keeps prices and quantities; this is the state only the engine
// knows and must not lose across restarts.
type PositionState struct {
	Ticket           int64     `json:"ticket"`
	Symbol           string    `json:"symbol"`
	Direction        string    `json:"direction"`
	EntryPrice       float64   `json:"entry_price"`
	Quantity         float64   `json:"quantity"`
	StopLoss         float64   `json:"stop_loss"`
	TakeProfit       float64   `json:"take_profit"`
	InitialStop      float64   `json:"initial_stop"`
	InitialTP        float64   `json:"initial_tp"`
	StopDistance     float64   `json:"stop_distance"`
	BreakevenApplied bool      `json:"breakeven_applied"`
	TrailingActive   bool      `json:"trailing_active"`
	HighWaterMark    float64   `json:"high_water_mark"`
	GroupID          string    `json:"group_id,omitempty"`
	OpenTime         time.Time `json:"open_time"`
	SavedAt          time.Time `json:"saved_at"`
}

// StateStore mirrors position state into Redis with an in-memory fallback so
// trading continues when Redis is down; recovery just loses restart safety
// until it returns.
type StateStore struct {
	client    *redis.Client
	logger    zerolog.Logger
	mu        sync.RWMutex
	fallback  map[int64]*PositionState
	available atomic.Bool
}

// NewStateStore creates a store. A nil client runs memory-only.
func NewStateStore(client *redis.Client, logger zerolog.Logger) *StateStore {
	s := &StateStore{
		client:   client,
		logger:   logger.With().Str("component", "state_store").Logger(),
		fallback: make(map[int64]*PositionState),
	}
	if client == nil {
		s.logger.Warn().Msg("no Redis client, position state is memory-only")
		return s
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory fallback")
	} else {
		s.available.Store(true)
		s.logger.Info().Msg("Redis connected")
	}
	return s
}

func key(ticket int64) string {
	return fmt.Sprintf("%s:%d", positionKeyPrefix, ticket)
}

// Save writes one position's state. Redis errors degrade to the fallback
// cache instead of failing the trading cycle.
func (s *StateStore) Save(ctx context.Context, st *PositionState) {
	st.SavedAt = time.Now().UTC()

	s.mu.Lock()
	s.fallback[st.Ticket] = st
	s.mu.Unlock()

	if s.client == nil {
		return
	}
	payload, err := json.Marshal(st)
	if err != nil {
		s.logger.Error().Err(err).Int64("ticket", st.Ticket).Msg("marshal position state")
		return
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key(st.Ticket), payload, positionStateTTL)
	pipe.SAdd(ctx, positionSetKey, st.Ticket)
	if _, err := pipe.Exec(ctx); err != nil {
		if s.available.Swap(false) {
			s.logger.Warn().Err(err).Msg("Redis write failed, falling back to memory")
		}
		return
	}
	s.available.Store(true)
}

// Delete drops a closed position's state.
func (s *StateStore) Delete(ctx context.Context, ticket int64) {
	s.mu.Lock()
	delete(s.fallback, ticket)
	s.mu.Unlock()

	if s.client == nil {
		return
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, key(ticket))
	pipe.SRem(ctx, positionSetKey, ticket)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Int64("ticket", ticket).Msg("Redis delete failed")
	}
}

// LoadAll returns every saved position state for startup recovery. Prefers
// Redis; falls back to the in-memory cache (which is empty after a restart,
// so recovery then starts from broker records alone).
func (s *StateStore) LoadAll(ctx context.Context) []*PositionState {
	if s.client != nil {
		if states, err := s.loadFromRedis(ctx); err == nil {
			return states
		} else {
			s.logger.Warn().Err(err).Msg("Redis recovery scan failed, using fallback cache")
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PositionState, 0, len(s.fallback))
	for _, st := range s.fallback {
		out = append(out, st)
	}
	return out
}

func (s *StateStore) loadFromRedis(ctx context.Context) ([]*PositionState, error) {
	tickets, err := s.client.SMembers(ctx, positionSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read position set: %w", err)
	}
	out := make([]*PositionState, 0, len(tickets))
	for _, ticket := range tickets {
		payload, err := s.client.Get(ctx, positionKeyPrefix+":"+ticket).Bytes()
		if err == redis.Nil {
			s.client.SRem(ctx, positionSetKey, ticket)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read position %s: %w", ticket, err)
		}
		var st PositionState
		if err := json.Unmarshal(payload, &st); err != nil {
			s.logger.Error().Err(err).Str("ticket", ticket).Msg("corrupt position state, skipping")
			continue
		}
		out = append(out, &st)
	}
	return out, nil
}

// Available reports whether Redis is currently reachable.
func (s *StateStore) Available() bool {
	return s.available.Load()
}
