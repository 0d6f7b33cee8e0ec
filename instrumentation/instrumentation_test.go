package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "default config",
			config:  Config{Enabled: false},
			wantErr: false,
		},
		{
			name: "with service name and version",
			config: Config{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
			wantErr: false,
		},
		{
			name: "empty service name gets default",
			config: Config{
				Enabled: true,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}

			if inst == nil {
				t.Fatal("New() returned nil instrumentation")
			}
			if inst.Meter("ratelimit") == nil {
				t.Error("Meter('ratelimit') returned nil")
			}
			if inst.Tracer("scheduler") == nil {
				t.Error("Tracer('scheduler') returned nil")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
		})
	}
}

func TestMetricsInstrumentsCreated(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m := inst.Metrics()
	if m.RateLimitChecksTotal == nil || m.RateLimitDeniedTotal == nil {
		t.Error("rate limit counters not created")
	}
	if m.SecurityEventsLogged == nil || m.AnomaliesFlagged == nil {
		t.Error("security counters not created")
	}
	if m.JobsDispatched == nil || m.JobDispatchDuration == nil {
		t.Error("scheduler instruments not created")
	}
}

func TestMetricsRecordingHelpersNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// Must not panic on a nil receiver.
	m.RecordRateLimitCheck(ctx, "login", false)
	m.RecordAnomalyCheck(ctx, true)
	m.RecordDispatch(ctx, "weekly_digest", true, 12.5)
}

func TestShutdown(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	// Second call is a no-op.
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() second call error = %v", err)
	}
}

func TestRegisterSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = inst.RegisterSizeCallbacks(
		func() int64 { return 3 },
		func() int64 { return 7 },
	)
	if err != nil {
		t.Errorf("RegisterSizeCallbacks() error = %v", err)
	}
}
