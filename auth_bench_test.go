package authengine

import (
	"context"
	"testing"
)

func BenchmarkIsLoggedIn(b *testing.B) {
	env := newTestEnv(b, testConfig())
	env.seed(b, "alice", "Password1", LevelUser)
	token := env.login(b, "alice", "Password1")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if ok, err := env.engine.IsLoggedIn(ctx, "alice", token); err != nil || !ok {
			b.Fatalf("IsLoggedIn failed: ok=%v err=%v", ok, err)
		}
	}
}

func BenchmarkAuthorize(b *testing.B) {
	env := newTestEnv(b, testConfig())
	env.seed(b, "admin", "Password1", LevelAdmin)
	env.seed(b, "user", "Password1", LevelUser)
	token := env.login(b, "admin", "Password1")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := env.engine.Authorize(ctx, "admin", token, "user"); err != nil {
			b.Fatalf("Authorize failed: %v", err)
		}
	}
}

func BenchmarkLoginReused(b *testing.B) {
	env := newTestEnv(b, testConfig())
	env.seed(b, "alice", "Password1", LevelUser)
	env.login(b, "alice", "Password1")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Login(ctx, "alice", "Password1"); err != nil {
			b.Fatalf("Login failed: %v", err)
		}
	}
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginSuccess)
		}
	})
}
