package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/store"
)

type fakeSource struct {
	snapshot authengine.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authengine.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: authengine.MetricsSnapshot{
			Counters:   map[authengine.MetricID]uint64{},
			Histograms: map[authengine.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: authengine.MetricsSnapshot{
			Counters: map[authengine.MetricID]uint64{
				authengine.MetricLoginSuccess: 7,
			},
			Histograms: map[authengine.MetricID][]uint64{
				authengine.MetricSessionCheckLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"authengine_login_success_total 7",
		"authengine_login_failure_total 0",
		"authengine_session_check_latency_seconds_bucket{le=\"0.005\"} 1",
		"authengine_session_check_latency_seconds_bucket{le=\"+Inf\"} 36",
		"authengine_session_check_latency_seconds_count 36",
		"authengine_audit_dropped_total 2",
		"# TYPE authengine_logout_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderSkipsDisabledHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: authengine.MetricsSnapshot{
			Counters:   map[authengine.MetricID]uint64{authengine.MetricLogout: 1},
			Histograms: map[authengine.MetricID][]uint64{},
		},
	})
	if out := exp.Render(); strings.Contains(out, "latency") {
		t.Fatalf("histogram rendered without data:\n%s", out)
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	cfg := authengine.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	engine, err := authengine.New().WithConfig(cfg).WithStore(store.NewMemory()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.Register(ctx, "", "", "alice", "Password1", true); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := engine.Login(ctx, "alice", "Password1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	NewExporter(engine).Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "authengine_login_success_total 1") {
		t.Fatalf("expected one login, got:\n%s", body)
	}
	if !strings.Contains(body, "authengine_register_forced_total 1") {
		t.Fatalf("expected one forced register, got:\n%s", body)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporter(fakeSource{
		snapshot: authengine.MetricsSnapshot{
			Counters: map[authengine.MetricID]uint64{
				authengine.MetricLoginSuccess:     1000,
				authengine.MetricLoginFailure:     40,
				authengine.MetricSessionCreated:   800,
				authengine.MetricSessionExpired:   20,
				authengine.MetricRegisterRejected: 3,
			},
			Histograms: map[authengine.MetricID][]uint64{
				authengine.MetricSessionCheckLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
