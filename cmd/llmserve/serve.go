package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmserve/internal/config"
	"llmserve/internal/httpapi"
	"llmserve/internal/llm"
	"llmserve/internal/llm/llamacpp"
	"llmserve/internal/llm/toylm"
	"llmserve/internal/scheduler"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(cfg.InferTimeoutSeconds)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)

	sched := scheduler.New(schedulerConfig(cfg), loaderFor(cfg.Backend), scheduler.WithLogger(log))

	// Listen before loading so /healthz and /readyz answer during the load.
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{Handler: httpapi.NewMux(sched), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Str("backend", cfg.Backend).Msg("listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if err := sched.Start(ctx); err != nil {
		if llm.IsDependencyUnavailable(err) {
			log.Error().Msg("llama backend not compiled in; rebuild with -tags=llama or use --backend toy")
		}
		shutdown(srv, sched, log)
		return err
	}
	notify(log, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-serveErr:
		log.Error().Err(err).Msg("server error")
	}
	notify(log, daemon.SdNotifyStopping)
	shutdown(srv, sched, log)
	return err
}

func loaderFor(backend string) llm.Loader {
	if backend == config.BackendToy {
		return toylm.Loader{}
	}
	return llamacpp.Loader{}
}

func shutdown(srv *http.Server, sched *scheduler.Scheduler, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := sched.Close(); err != nil {
		log.Warn().Err(err).Msg("closing scheduler")
	}
}

// notify reports state to systemd. Outside systemd it does nothing.
func notify(log zerolog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn().Err(err).Str("state", state).Msg("sd_notify failed")
		return
	}
	if sent {
		log.Debug().Str("state", state).Msg("sd_notify sent")
	}
}

