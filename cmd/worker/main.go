// Command worker é o backend de referência atrás do gateway:
// GET /health reporta cpu/memória do host e POST /process ecoa o corpo.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port      int
		latency   time.Duration
		errorRate float64
		devLog    bool
	)
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Reference backend worker for the overload gateway",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// o provisioner passa a porta também por env
			if !cmd.Flags().Changed("port") {
				if v := os.Getenv("PORT"); v != "" {
					p, err := strconv.Atoi(v)
					if err != nil {
						return fmt.Errorf("invalid PORT: %w", err)
					}
					port = p
				}
			}
			if errorRate < 0 || errorRate > 1 {
				return errors.New("--error-rate must be in [0, 1]")
			}

			log, err := newLogger(devLog)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			w := &Worker{
				Port:      port,
				Latency:   latency,
				ErrorRate: errorRate,
				Sampler:   hostSampler{},
				Log:       log,
			}
			return serve(ctx, ":"+strconv.Itoa(port), w.Routes(), log)
		},
	}
	cmd.Flags().IntVar(&port, "port", 4000, "listen port (env PORT when unset)")
	cmd.Flags().DurationVar(&latency, "latency", 0, "artificial processing latency")
	cmd.Flags().Float64Var(&errorRate, "error-rate", 0, "fraction of /process calls answered with 500")
	cmd.Flags().BoolVar(&devLog, "dev", false, "console logging")
	return cmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("worker listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
