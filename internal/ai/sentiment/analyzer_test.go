package sentiment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScoreExtremes(t *testing.T) {
	cases := []struct {
		index   int
		extreme bool
		reason  string
	}{
		{0, true, "extreme fear"},
		{10, true, "extreme fear"},
		{11, false, ""},
		{50, false, ""},
		{89, false, ""},
		{90, true, "extreme greed"},
		{100, true, "extreme greed"},
	}
	for _, c := range cases {
		s := &Score{Index: c.index}
		extreme, reason := s.Extreme()
		if extreme != c.extreme || reason != c.reason {
			t.Errorf("index %d: got (%v, %q), want (%v, %q)",
				c.index, extreme, reason, c.extreme, c.reason)
		}
	}
}

func TestCurrentBeforeFirstFetch(t *testing.T) {
	a := NewAnalyzer(nil, zerolog.Nop())
	if _, err := a.Current(); err != ErrUnavailable {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCurrentStaleCache(t *testing.T) {
	a := NewAnalyzer(nil, zerolog.Nop())
	a.score = &Score{Index: 40, FetchedAt: time.Now().Add(-2 * time.Hour)}

	_, err := a.Current()
	if err == nil {
		t.Fatal("expected stale error for a two hour old score")
	}
	if !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
}

func TestRefreshParsesFearGreed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"value":"25","value_classification":"Fear"}]}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.FearGreedURL = srv.URL
	a := NewAnalyzer(cfg, zerolog.Nop())
	a.refresh(context.Background())

	score, err := a.Current()
	if err != nil {
		t.Fatalf("Current after refresh: %v", err)
	}
	if score.Index != 25 || score.Label != "Fear" {
		t.Errorf("score = %+v, want index 25 label Fear", score)
	}
	// 25 on a 0-100 scale recenters to -0.5.
	if score.Value != -0.5 {
		t.Errorf("value = %v, want -0.5", score.Value)
	}
	if len(score.Sources) != 1 || score.Sources[0] != "fear_greed" {
		t.Errorf("sources = %v", score.Sources)
	}
}

func TestRefreshKeepsPreviousOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.FearGreedURL = srv.URL
	a := NewAnalyzer(cfg, zerolog.Nop())
	prev := &Score{Index: 60, FetchedAt: time.Now()}
	a.score = prev

	a.refresh(context.Background())

	score, err := a.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if score != prev {
		t.Error("failed refresh replaced the cached score")
	}
}

func TestRefreshBlendsNewsScore(t *testing.T) {
	fg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"value":"50","value_classification":"Neutral"}]}`))
	}))
	defer fg.Close()

	fresh := time.Now().Add(-10 * time.Minute).Format(time.RFC3339)
	news := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"published_at":"` + fresh + `","votes":{"positive":9,"negative":1}}]}`))
	}))
	defer news.Close()

	cfg := DefaultConfig()
	cfg.FearGreedURL = fg.URL
	cfg.NewsURL = news.URL
	cfg.NewsAPIKey = "test-key"
	a := NewAnalyzer(cfg, zerolog.Nop())
	a.refresh(context.Background())

	score, err := a.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(score.Sources) != 2 {
		t.Fatalf("sources = %v, want fear_greed and news", score.Sources)
	}
	if score.NewsScore != 0.8 {
		t.Errorf("news score = %v, want 0.8", score.NewsScore)
	}
	// Neutral index contributes 0, so the blend is 0.3 * 0.8.
	if score.Value < 0.239 || score.Value > 0.241 {
		t.Errorf("blended value = %v, want 0.24", score.Value)
	}
}
