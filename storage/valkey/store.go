// Package valkey provides a Valkey/Redis-compatible implementation of the
// storage interfaces for deployments that must survive restarts or share
// state across instances.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/jobtrail/authguard/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "ag:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxKeyLength is the maximum allowed length for rate-limit keys and job IDs.
	// This prevents resource exhaustion via attacker-controlled identifiers
	// (rate-limit keys embed caller-supplied email addresses).
	MaxKeyLength = 256
)

// Config holds the Valkey store configuration.
type Config struct {
	// Address is the Valkey server address (host:port). Required.
	Address string

	// Username for ACL authentication (optional).
	Username string

	// Password for authentication (optional).
	Password string

	// DB is the database number to select.
	DB int

	// KeyPrefix is prepended to every key. Default: "ag:".
	KeyPrefix string

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	// Logger for structured logging (optional, uses default if not provided).
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of the storage interfaces.
// It implements RateLimitStore and JobStore.
//
// Rate-limit windows are written with a TTL equal to the window length, so a
// process restart can never resurrect a stale window and under-restrict: a
// key either holds a live window or nothing.
type Store struct {
	client    valkeygo.Client
	keyPrefix string
	logger    *slog.Logger
	closeOnce sync.Once
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.RateLimitStore = (*Store)(nil)
	_ storage.JobStore       = (*Store)(nil)
)

// New creates a new Valkey store and verifies connectivity.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		Username:    cfg.Username,
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
		TLSConfig:   cfg.TLSConfig,
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return &Store{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    cfg.Logger,
	}, nil
}

// Close releases the underlying client connection.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.client.Close()
	})
}

func (s *Store) rateLimitKey(key string) string {
	return s.keyPrefix + "rl:" + key
}

func (s *Store) jobKey(id string) string {
	return s.keyPrefix + "job:" + id
}

func (s *Store) jobIndexKey() string {
	return s.keyPrefix + "jobs"
}

func validateKeyLength(value, name string) error {
	if len(value) > MaxKeyLength {
		return fmt.Errorf("%s exceeds maximum length of %d", name, MaxKeyLength)
	}
	return nil
}
