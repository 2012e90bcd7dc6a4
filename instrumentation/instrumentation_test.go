package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "disabled",
			config: Config{Enabled: false},
		},
		{
			name: "with service name and version",
			config: Config{
				Enabled:        true,
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
		},
		{
			name:   "empty service name gets default",
			config: Config{Enabled: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			if inst.Meter("service") == nil {
				t.Error("Meter('service') returned nil")
			}
			if inst.Tracer("service") == nil {
				t.Error("Tracer('service') returned nil")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.MeterProvider() == nil {
				t.Error("MeterProvider() returned nil")
			}
			if inst.TracerProvider() == nil {
				t.Error("TracerProvider() returned nil")
			}
		})
	}
}

func TestMetricsRecording(t *testing.T) {
	inst, err := New(Config{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	m := inst.Metrics()

	// Recording against no-op providers must not panic.
	m.RecordTokenIssued(ctx, "access")
	m.RecordVerificationFailure(ctx, "refresh", "expired")
	m.RecordOAuthExchange(ctx, "google", nil)
	m.RecordOAuthExchange(ctx, "google", errors.New("upstream down"))
	m.RecordEmailSent(ctx, "confirmation")
	m.UsersRegistered.Add(ctx, 1)
	m.LoginsFailed.Add(ctx, 1)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordTokenIssued(ctx, "access")
	m.RecordVerificationFailure(ctx, "access", "malformed")
	m.RecordOAuthExchange(ctx, "github", nil)
	m.RecordEmailSent(ctx, "resetPassword")
}

func TestSpanHelpers(t *testing.T) {
	// Nil spans are tolerated everywhere.
	RecordError(nil, errors.New("boom"))
	SetSpanSuccess(nil)
	SetSpanAttributes(nil)
	AddFlowAttributes(nil, "user-1", "access")
	AddProviderAttributes(nil, "google")

	inst, err := New(Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, span := inst.Tracer("service").Start(context.Background(), "test")
	defer span.End()

	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	AddFlowAttributes(span, "user-1", "refresh")
	AddProviderAttributes(span, "github")
	SetSpanAttributes(span, attribute.String(AttrErrorCode, "unauthorized"))
	SetSpanSuccess(span)
}

func TestShutdownIdempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() second call error = %v", err)
	}
}
