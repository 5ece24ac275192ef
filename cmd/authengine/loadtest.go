package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/store"
)

const loadtestPassword = "Password1"

func loadtestCmd(g *globals) *cli.Command {
	var (
		users       int
		concurrency int
		ops         int
		redisAddr   string
		prefix      string
	)
	return &cli.Command{
		Name:  "loadtest",
		Usage: "Measure login and session check latency against a Redis backed engine",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "users", Value: 1000, Usage: "number of accounts to seed", Destination: &users},
			&cli.IntFlag{Name: "concurrency", Value: 64, Usage: "number of concurrent workers", Destination: &concurrency},
			&cli.IntFlag{Name: "ops", Value: 20000, Usage: "session checks to run; logins run ops/100", Destination: &ops},
			&cli.StringFlag{
				Name:        "redis-addr",
				Usage:       "redis address; miniredis is used when empty",
				EnvVars:     []string{"REDIS_ADDR"},
				Destination: &redisAddr,
			},
			&cli.StringFlag{Name: "prefix", Value: "aeload:", Usage: "key prefix", Destination: &prefix},
		},
		Action: func(c *cli.Context) error {
			if users <= 0 || concurrency <= 0 || ops <= 0 {
				return errors.New("users, concurrency and ops must be > 0")
			}
			client, cleanup, err := loadtestRedis(redisAddr, c.App.Writer)
			if err != nil {
				return err
			}
			defer cleanup()

			engine, err := authengine.New().
				WithConfig(g.cfg.Engine).
				WithStore(store.NewRedis(client, prefix)).
				WithRedis(client).
				WithLogger(g.logger).
				Build()
			if err != nil {
				return err
			}
			defer engine.Close()

			return runLoadtest(c.Context, engine, c.App.Writer, users, concurrency, ops)
		},
	}
}

func loadtestRedis(addr string, out io.Writer) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Fprintf(out, "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

type account struct {
	name  string
	token string
}

func runLoadtest(ctx context.Context, engine *authengine.Engine, out io.Writer, users, concurrency, ops int) error {
	accounts := make([]account, users)
	fmt.Fprintf(out, "seeding %d accounts...\n", users)
	startSeed := time.Now()
	for i := range accounts {
		name := fmt.Sprintf("load-%d", i)
		if err := engine.Register(ctx, "", "", name, loadtestPassword, true); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		token, err := engine.Login(ctx, name, loadtestPassword)
		if err != nil {
			return fmt.Errorf("login %s: %w", name, err)
		}
		accounts[i] = account{name: name, token: token}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	checkStats := runPhase(ops, concurrency, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		ok, err := engine.IsLoggedIn(ctx, a.name, a.token)
		if err == nil && !ok {
			err = authengine.ErrNotAuthenticated
		}
		return err
	})

	logins := ops / 100
	if logins == 0 {
		logins = 1
	}
	loginStats := runPhase(logins, concurrency, func(r *rand.Rand) error {
		a := accounts[r.Intn(len(accounts))]
		_, err := engine.Login(ctx, a.name, loadtestPassword)
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "session check", checkStats)
	printStats(out, "login", loginStats)
	return nil
}

// runPhase spreads ops calls of op over concurrency workers and records the
// latency of each call.
func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
