package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/auditsink"
)

// openAuditSink builds the configured sinks. The returned close func must
// run after the engine has been closed so buffered events are flushed into
// still-open sinks.
func openAuditSink(ctx context.Context, cfg AuditConfig, logger zerolog.Logger) (authengine.AuditSink, func() error, error) {
	var (
		sinks   authengine.MultiSink
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	for _, name := range cfg.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, authengine.NewLogSink(logger))
		case "json":
			if err := os.MkdirAll(filepath.Dir(cfg.JSONPath), 0o750); err != nil {
				_ = closeAll()
				return nil, nil, fmt.Errorf("audit json sink: %w", err)
			}
			f, err := os.OpenFile(cfg.JSONPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
			if err != nil {
				_ = closeAll()
				return nil, nil, fmt.Errorf("audit json sink: %w", err)
			}
			closers = append(closers, f.Close)
			sinks = append(sinks, authengine.NewJSONWriterSink(f))
		case "mqtt":
			m, err := auditsink.DialMQTT(cfg.MQTT, logger)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			closers = append(closers, m.Close)
			sinks = append(sinks, m)
		case "influx":
			in, err := auditsink.DialInflux(ctx, cfg.Influx, logger)
			if err != nil {
				_ = closeAll()
				return nil, nil, err
			}
			closers = append(closers, in.Close)
			sinks = append(sinks, in)
		default:
			_ = closeAll()
			return nil, nil, fmt.Errorf("unknown audit sink %q", name)
		}
	}

	switch len(sinks) {
	case 0:
		return authengine.NoOpSink{}, closeAll, nil
	case 1:
		return sinks[0], closeAll, nil
	default:
		return sinks, closeAll, nil
	}
}
