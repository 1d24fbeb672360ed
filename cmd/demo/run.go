package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/on-the-ground/lifecycle_ive_go/config"
	"github.com/on-the-ground/lifecycle_ive_go/config/configkeys"
	"github.com/on-the-ground/lifecycle_ive_go/effects/clock"
	"github.com/on-the-ground/lifecycle_ive_go/effects/engine"
	"github.com/on-the-ground/lifecycle_ive_go/effects/log"
	"github.com/on-the-ground/lifecycle_ive_go/effects/token"
	"github.com/on-the-ground/lifecycle_ive_go/examples/demo"
)

const avatarBaseURL = "https://avatars.example"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Present the detail, let it run, then dismiss it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := log.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return run(ctx, cfg, logger, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().Duration("duration", 0, "how long the detail stays presented (overrides demo.duration)")
	runCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address (overrides metrics.addr)")
	rootCmd.AddCommand(runCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	sets, _ := cmd.Flags().GetStringToString("set")

	overrides := make(map[string]any, len(sets)+2)
	for k, v := range sets {
		overrides[k] = v
	}
	if cmd.Flags().Changed("duration") {
		d, _ := cmd.Flags().GetDuration("duration")
		overrides[configkeys.DemoDuration] = d.String()
	}
	if cmd.Flags().Changed("metrics-addr") {
		addr, _ := cmd.Flags().GetString("metrics-addr")
		overrides[configkeys.MetricsAddr] = addr
	}
	return config.Load(path, overrides)
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) error {
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	session := demo.NewSession(ctx, cfg.EngineConfig(), demo.Dependencies{
		Clock:         clock.Realtime(),
		TickInterval:  cfg.Demo.TickInterval,
		PulseInterval: cfg.Demo.PulseInterval,
		Fetch:         demo.StaticFetcher(avatarBaseURL, cfg.Demo.PulseInterval),
	}, demo.WithLogger(logger), demo.WithMetrics(metrics))
	defer session.Stop()

	unsubscribe := session.Store().Subscribe(func(s demo.AppState) {
		d, ok := s.Detail.Get()
		if !ok {
			return
		}
		logger.Debug("state",
			zap.Int("time", d.Time),
			zap.Int("me_pulses", d.Me.Pulses),
			zap.Int("peer_pulses", d.Peer.Pulses),
			zap.String("me_url", d.Me.URL),
		)
	})
	defer unsubscribe()

	session.Start()
	session.Present()
	session.Speak(true)
	if !sleep(ctx, cfg.Demo.Duration/2) {
		return reportInterrupted(ctx, session, out)
	}
	session.Speak(false)
	if !sleep(ctx, cfg.Demo.Duration-cfg.Demo.Duration/2) {
		return reportInterrupted(ctx, session, out)
	}

	var shown demo.DetailState
	if d, ok := session.Detail(); ok {
		shown = d.State()
	}
	session.Dismiss()
	if err := session.Store().Settle(ctx); err != nil {
		return reportInterrupted(ctx, session, out)
	}

	fmt.Fprintf(out, "detail shown for %d ticks, me pulsed %d times, peer pulsed %d times\n",
		shown.Time, shown.Me.Pulses, shown.Peer.Pulses)
	fmt.Fprintf(out, "effects still running under detail: %d\n", session.Engine().RunningUnder(token.New(demo.DetailKey)))
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func reportInterrupted(ctx context.Context, session *demo.Session, out io.Writer) error {
	session.Dismiss()
	fmt.Fprintln(out, "interrupted")
	return ctx.Err()
}
