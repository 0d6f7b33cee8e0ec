package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jobtrail/authguard/storage"
)

// ============================================================
// RateLimitStore Implementation
// ============================================================

// rateLimitJSON is the persisted shape of a fixed window, matching the
// documented schema (key, window_start, count, window_ms, limit).
type rateLimitJSON struct {
	Key         string `json:"key"`
	WindowStart int64  `json:"window_start"` // Unix milliseconds
	Count       int    `json:"count"`
	WindowMs    int64  `json:"window_ms"`
	Limit       int    `json:"limit"`
}

// luaFixedWindowIncr atomically applies the fixed-window check-and-increment.
//
// KEYS[1] = rate-limit key (e.g., "ag:rl:login:user@example.com")
// ARGV[1] = current time in Unix milliseconds
// ARGV[2] = window length in milliseconds
// ARGV[3] = request limit for the window
//
// Returns the JSON-encoded record after the increment. The window is stored
// with PX = window length so stale windows expire server-side; a decode
// failure is treated as no record and overwritten with a fresh window.
const luaFixedWindowIncr = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local data = redis.call('GET', KEYS[1])
if data then
    local ok, rec = pcall(cjson.decode, data)
    if ok and rec.window_start and (now - rec.window_start) < window then
        rec.count = rec.count + 1
        rec.limit = limit
        rec.window_ms = window
        local remaining = rec.window_start + window - now
        redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', remaining)
        return cjson.encode(rec)
    end
end

local rec = {window_start = now, count = 1, limit = limit, window_ms = window}
redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', window)
return cjson.encode(rec)
`

// Incr applies the fixed-window check-and-increment via a Lua script so the
// read-decide-write sequence is atomic across processes, not just goroutines.
func (s *Store) Incr(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (storage.RateLimitRecord, error) {
	if key == "" {
		return storage.RateLimitRecord{}, fmt.Errorf("rate limit key cannot be empty")
	}
	if err := validateKeyLength(key, "rate limit key"); err != nil {
		return storage.RateLimitRecord{}, err
	}

	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaFixedWindowIncr).
			Numkeys(1).
			Key(s.rateLimitKey(key)).
			Arg(strconv.FormatInt(now.UnixMilli(), 10)).
			Arg(strconv.FormatInt(window.Milliseconds(), 10)).
			Arg(strconv.Itoa(limit)).
			Build(),
	).ToString()
	if err != nil {
		return storage.RateLimitRecord{}, fmt.Errorf("failed to execute fixed-window increment: %w", err)
	}

	var rec rateLimitJSON
	if err := json.Unmarshal([]byte(result), &rec); err != nil {
		return storage.RateLimitRecord{}, fmt.Errorf("failed to decode rate limit record: %w", err)
	}

	return storage.RateLimitRecord{
		Key:         key,
		WindowStart: time.UnixMilli(rec.WindowStart),
		Count:       rec.Count,
		Limit:       rec.Limit,
		Window:      time.Duration(rec.WindowMs) * time.Millisecond,
	}, nil
}

// GetRateLimit retrieves the current record for a key, or nil if none exists.
func (s *Store) GetRateLimit(ctx context.Context, key string) (*storage.RateLimitRecord, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.rateLimitKey(key)).Build())
	if err := resp.Error(); err != nil {
		if valkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rate limit record: %w", err)
	}

	data, err := resp.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit record: %w", err)
	}

	var rec rateLimitJSON
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode rate limit record: %w", err)
	}

	return &storage.RateLimitRecord{
		Key:         key,
		WindowStart: time.UnixMilli(rec.WindowStart),
		Count:       rec.Count,
		Limit:       rec.Limit,
		Window:      time.Duration(rec.WindowMs) * time.Millisecond,
	}, nil
}

// DeleteRateLimit removes the record for a key.
func (s *Store) DeleteRateLimit(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.rateLimitKey(key)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete rate limit record: %w", err)
	}
	return nil
}
