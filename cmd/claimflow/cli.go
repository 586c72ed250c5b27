package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/CMSgov/claimflow/internal/biller"
	"github.com/CMSgov/claimflow/internal/conf"
	"github.com/CMSgov/claimflow/internal/log"
	"github.com/CMSgov/claimflow/internal/metrics"
	"github.com/CMSgov/claimflow/internal/monitoring"
	"github.com/CMSgov/claimflow/internal/pipeline"
)

// Exit codes per the CLI's documented contract: 0 on clean completion,
// a distinct non-zero code for a bad invocation vs. a fatal pipeline
// condition vs. an incomplete drain.
const (
	exitOK = iota
	exitUsage
	exitFatal
	exitIncompleteDrain
)

// resolveConfig merges an optional TOML file with CLI flag values,
// flags losing to any field the file sets explicitly, except the drain
// deadline: a non-zero drainDeadlineSec wins, and the file's
// drain_deadline applies only when it is zero. At least one payer
// (from either source) is required.
func resolveConfig(inputPath string, rate float64, reportInterval, drainDeadlineSec int, groupByPayer bool, configPath string, payerSpecs []string) (pipeline.Config, error) {
	file, err := conf.Load(configPath)
	if err != nil {
		return pipeline.Config{}, err
	}

	if file.Rate > 0 {
		rate = file.Rate
	}
	if file.ReportInterval > 0 {
		reportInterval = file.ReportInterval
	}

	var payers []pipeline.PayerConfig
	if len(file.Payers) > 0 {
		for _, pc := range file.Payers {
			min, err := time.ParseDuration(pc.MinDelay)
			if err != nil {
				return pipeline.Config{}, fmt.Errorf("payer %s: invalid min_delay: %w", pc.ID, err)
			}
			max, err := time.ParseDuration(pc.MaxDelay)
			if err != nil {
				return pipeline.Config{}, fmt.Errorf("payer %s: invalid max_delay: %w", pc.ID, err)
			}
			payers = append(payers, pipeline.PayerConfig{ID: pc.ID, MinDelay: min, MaxDelay: max, Concurrency: 4})
		}
	} else {
		for _, spec := range payerSpecs {
			pc, err := parsePayerSpec(spec)
			if err != nil {
				return pipeline.Config{}, err
			}
			payers = append(payers, pc)
		}
	}
	if len(payers) == 0 {
		return pipeline.Config{}, fmt.Errorf("at least one --payer is required")
	}

	drainDeadline := time.Duration(drainDeadlineSec) * time.Second
	if drainDeadlineSec == 0 && file.DrainDeadline != "" {
		drainDeadline, err = time.ParseDuration(file.DrainDeadline)
		if err != nil {
			return pipeline.Config{}, fmt.Errorf("invalid drain_deadline: %w", err)
		}
	}

	return pipeline.Config{
		InputPath:         inputPath,
		Rate:              rate,
		Payers:            payers,
		ReportInterval:    time.Duration(reportInterval) * time.Second,
		GroupAgingByPayer: groupByPayer,
		DrainDeadline:     drainDeadline,
		Monitor:           monitoring.New("claimflow", file.NewRelicLicense),
		Metrics:           metrics.New(),
	}, nil
}

// parsePayerSpec parses "<id>:<min_ms>:<max_ms>" per the CLI contract.
func parsePayerSpec(spec string) (pipeline.PayerConfig, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return pipeline.PayerConfig{}, fmt.Errorf("invalid --payer %q: want <id>:<min_ms>:<max_ms>", spec)
	}
	minMS, err := strconv.Atoi(parts[1])
	if err != nil {
		return pipeline.PayerConfig{}, fmt.Errorf("invalid --payer %q: %w", spec, err)
	}
	maxMS, err := strconv.Atoi(parts[2])
	if err != nil {
		return pipeline.PayerConfig{}, fmt.Errorf("invalid --payer %q: %w", spec, err)
	}
	if minMS > maxMS {
		return pipeline.PayerConfig{}, fmt.Errorf("invalid --payer %q: min_ms must be <= max_ms", spec)
	}
	return pipeline.PayerConfig{
		ID:          parts[0],
		MinDelay:    time.Duration(minMS) * time.Millisecond,
		MaxDelay:    time.Duration(maxMS) * time.Millisecond,
		Concurrency: 4,
	}, nil
}

// run builds and executes the pipeline, mapping its outcome onto the
// documented exit codes.
func run(ctx context.Context, cfg pipeline.Config) (int, error) {
	p := pipeline.Build(cfg)
	err := p.Run(ctx)
	defer func() {
		if cfg.Monitor != nil {
			cfg.Monitor.Shutdown(context.Background())
		}
	}()

	return exitCodeFor(err)
}

// exitCodeFor maps a pipeline run's terminal error onto the CLI's
// documented exit codes: nil is clean completion, an
// ErrDrainDeadlineExceeded is the documented non-fatal incomplete
// drain, anything else is a fatal pipeline condition.
func exitCodeFor(err error) (int, error) {
	if err == nil {
		return exitOK, nil
	}

	var ddErr *biller.ErrDrainDeadlineExceeded
	if errors.As(err, &ddErr) {
		return exitIncompleteDrain, err
	}
	return exitFatal, err
}

// contextWithSignals returns a context that is cancelled on SIGINT,
// SIGTERM, or SIGQUIT, so every stage gets a chance at a best-effort
// drain before the process exits.
func contextWithSignals() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		s := <-signalChan
		log.Pipeline.WithField("signal", s.String()).Warn("claimflow: received signal, draining")
		cancel()
	}()

	return ctx
}
