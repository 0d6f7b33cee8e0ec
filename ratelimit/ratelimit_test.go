package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jobtrail/authguard/internal/testutil"
	"github.com/jobtrail/authguard/storage"
	"github.com/jobtrail/authguard/storage/memory"
)

func newTestLimiter(t *testing.T) (*Limiter, *testutil.MockClock) {
	t.Helper()
	store := memory.NewWithInterval(0)
	clk := testutil.NewMockClock(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	return New(store, clk, nil), clk
}

func TestCheck_AllowsUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	cfg := Config{Window: 15 * time.Minute, MaxRequests: 5}
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result := limiter.Check(ctx, "login:user@example.com", cfg)
		if !result.Allowed {
			t.Errorf("Check() call %d should be allowed", i)
		}
		if want := 5 - i; result.Remaining != want {
			t.Errorf("Check() call %d remaining = %d, want %d", i, result.Remaining, want)
		}
	}

	result := limiter.Check(ctx, "login:user@example.com", cfg)
	if result.Allowed {
		t.Error("Check() call 6 should be denied")
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0 when denied", result.Remaining)
	}
}

func TestCheck_WindowReset(t *testing.T) {
	limiter, clk := newTestLimiter(t)
	cfg := Config{Window: 15 * time.Minute, MaxRequests: 2}
	ctx := context.Background()

	limiter.Check(ctx, "login:user@example.com", cfg)
	limiter.Check(ctx, "login:user@example.com", cfg)
	if limiter.Check(ctx, "login:user@example.com", cfg).Allowed {
		t.Fatal("third check within window should be denied")
	}

	// Exactly at windowStart+window the count resets.
	clk.Advance(15 * time.Minute)
	result := limiter.Check(ctx, "login:user@example.com", cfg)
	if !result.Allowed {
		t.Error("check after window expiry should be allowed")
	}
	if result.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1 after reset", result.Remaining)
	}
}

func TestCheck_ResetAt(t *testing.T) {
	limiter, clk := newTestLimiter(t)
	cfg := Config{Window: 15 * time.Minute, MaxRequests: 5}

	start := clk.Now()
	result := limiter.Check(context.Background(), "login:user@example.com", cfg)

	if want := start.Add(15 * time.Minute); !result.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", result.ResetAt, want)
	}
}

func TestCheck_IndependentKeys(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	cfg := Config{Window: time.Hour, MaxRequests: 1}
	ctx := context.Background()

	if !limiter.Check(ctx, "signup:a@example.com", cfg).Allowed {
		t.Error("first check for key a should be allowed")
	}
	if limiter.Check(ctx, "signup:a@example.com", cfg).Allowed {
		t.Error("second check for key a should be denied")
	}
	if !limiter.Check(ctx, "signup:b@example.com", cfg).Allowed {
		t.Error("check for key b should be allowed (independent window)")
	}
}

func TestCheck_ConcurrentCallersNeverOverAllow(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	cfg := Config{Window: time.Hour, MaxRequests: 10}
	ctx := context.Background()

	const callers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check(ctx, "login:shared@example.com", cfg).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("concurrent callers allowed = %d, want exactly 10", allowed)
	}
}

// failingStore simulates an unavailable backend.
type failingStore struct{}

func (failingStore) Incr(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (storage.RateLimitRecord, error) {
	return storage.RateLimitRecord{}, errors.New("store unavailable")
}

func (failingStore) GetRateLimit(ctx context.Context, key string) (*storage.RateLimitRecord, error) {
	return nil, errors.New("store unavailable")
}

func (failingStore) DeleteRateLimit(ctx context.Context, key string) error {
	return errors.New("store unavailable")
}

func TestCheck_FailsOpenOnStoreError(t *testing.T) {
	limiter := New(failingStore{}, nil, nil)

	result := limiter.Check(context.Background(), "login:user@example.com", PasswordLoginPreset)
	if !result.Allowed {
		t.Error("Check() must fail open when the store is unavailable")
	}
}

func TestResult_WaitMinutes(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		resetAt time.Time
		want    int
	}{
		{"already reset", now.Add(-time.Minute), 0},
		{"exactly now", now, 0},
		{"thirty seconds rounds up", now.Add(30 * time.Second), 1},
		{"exactly one minute", now.Add(time.Minute), 1},
		{"just over one minute rounds up", now.Add(time.Minute + time.Second), 2},
		{"fifteen minutes", now.Add(15 * time.Minute), 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Result{ResetAt: tt.resetAt}
			if got := r.WaitMinutes(now); got != tt.want {
				t.Errorf("WaitMinutes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	if PasswordLoginPreset.Window != 15*time.Minute || PasswordLoginPreset.MaxRequests != 5 {
		t.Errorf("PasswordLoginPreset = %+v, want 5 per 15m", PasswordLoginPreset)
	}
	if SignupPreset.Window != time.Hour || SignupPreset.MaxRequests != 3 {
		t.Errorf("SignupPreset = %+v, want 3 per 60m", SignupPreset)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"login key", LoginKey("User@Example.com"), "login:user@example.com"},
		{"signup key", SignupKey("new@example.com"), "signup:new@example.com"},
		{"oauth key", OAuthKey("google", "app.jobtrail.dev"), "oauth:google:app.jobtrail.dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key != tt.want {
				t.Errorf("key = %q, want %q", tt.key, tt.want)
			}
		})
	}
}

func TestKeyScope(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"login:user@example.com", "login"},
		{"signup:user@example.com", "signup"},
		{"oauth:google:host", "oauth"},
		{"custom:thing", "unknown"},
		{"noscope", "unknown"},
		{":empty", "unknown"},
	}
	for _, tt := range tests {
		if got := KeyScope(tt.key); got != tt.want {
			t.Errorf("KeyScope(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
