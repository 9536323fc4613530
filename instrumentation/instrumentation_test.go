package instrumentation

import (
	"context"
	"testing"
)

func TestDisabledInstrumentationIsSafe(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	m := inst.Metrics()
	if m == nil {
		t.Fatal("Metrics() must never return nil")
	}

	// Noop providers accept every recording without error
	m.RecordHTTPRequest(ctx, "GET", "/authorize", 200, 1.5)
	m.RecordAuthorizationStarted(ctx, "client")
	m.RecordGrantApproved(ctx, "client")
	m.RecordCodeExchange(ctx, "client", true)
	m.RecordTokenRefresh(ctx, "client")
	m.RecordRateLimitExceeded(ctx, "ip")
	m.RecordPKCEValidationFailed(ctx)
	m.RecordCsrfMismatch(ctx)
	m.RecordCodeReuseDetected(ctx)
	m.RecordStorageOperation(ctx, "save_grant", "success", 0.2)
	m.RecordAuditEvent(ctx, "token_issued")

	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 1 },
		func() int64 { return 2 },
		func() int64 { return 3 },
	)
	if err != nil {
		t.Errorf("registering gauges on a noop meter should succeed: %v", err)
	}
}

func TestTracerNeverNil(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Tracer("server") == nil {
		t.Error("Tracer() must never return nil")
	}
	if inst.Meter("server") == nil {
		t.Error("Meter() must never return nil")
	}
}
