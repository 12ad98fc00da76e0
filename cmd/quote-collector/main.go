// Command quote-collector runs the acquisition core as a daemon: it fetches
// quotes for a configured index watchlist through the dispatcher, persists
// them to the configured sinks, and serves health and metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marketpulse/optionsfeed/pkg/breaker"
	"github.com/marketpulse/optionsfeed/pkg/cache"
	"github.com/marketpulse/optionsfeed/pkg/config"
	"github.com/marketpulse/optionsfeed/pkg/dispatch"
	"github.com/marketpulse/optionsfeed/pkg/logging"
	"github.com/marketpulse/optionsfeed/pkg/quote"
	"github.com/marketpulse/optionsfeed/pkg/ratelimit"
	"github.com/marketpulse/optionsfeed/pkg/sink"
	"github.com/marketpulse/optionsfeed/pkg/upstream"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quote-collector",
	Short: "Rate-limited options quote acquisition daemon",
	Long: `quote-collector polls the brokerage quote API for a configured index
watchlist through a rate-limited, cached, batched acquisition core and
persists the results to the configured sinks.

Configuration is read from a config file (--config), environment variables
with the QUOTEFEED_ prefix, and built-in defaults, in that order of
precedence.`,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default quote-collector.yaml in . or /etc/optionsfeed)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Collector failed")
		os.Exit(1)
	}
}

// loadConfig merges defaults, the config file, and environment overrides.
func loadConfig() (config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUOTEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("quote-collector")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/optionsfeed")
	}

	cfg := config.Default()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{Level: logging.LogLevel(cfg.LogLevel), Output: os.Stderr})

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(cache.Config{MaxSize: cfg.MaxCacheSize})
	if err != nil {
		return err
	}
	limiter, err := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		BurstCapacity:     cfg.BurstCapacity,
	})
	if err != nil {
		return err
	}
	circuit, err := breaker.New(breaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
	})
	if err != nil {
		return err
	}
	transport, err := upstream.NewHTTPTransport(upstream.HTTPConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		AccessToken: cfg.AccessToken,
		Timeout:     cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer sinks.Close()

	dispatcher, err := dispatch.New(dispatch.Config{
		Cache:                store,
		Limiter:              limiter,
		Breaker:              circuit,
		Transport:            transport,
		Sink:                 sinks,
		MaxBatchSize:         cfg.BatchSize,
		BatchTimeout:         cfg.BatchTimeout,
		RequestTimeout:       cfg.RequestTimeout,
		CacheTTL:             cfg.CacheTTL,
		MaxConcurrentBatches: cfg.MaxConcurrentRequests,
		Retry: dispatch.RetryPolicy{
			MaxAttempts: cfg.MaxRetryAttempts,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		},
	})
	if err != nil {
		return err
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		_ = dispatcher.Run(ctx)
	}()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: newRouter(limiter, circuit, store),
	}
	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	go collectLoop(ctx, dispatcher, cfg.Watchlist, cfg.CacheTTL)

	// Periodic cleanup of expired cache entries; Get already checks
	// expiry, this just frees capacity.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.Sweep()
			}
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-srvErr:
		stop()
		<-dispatchDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-dispatchDone

	log.Info().Msg("Collector stopped")
	return nil
}

// buildSinks assembles the configured sinks into one fan-out sink. With no
// sink configured the collector still runs; quotes then live only in cache.
func buildSinks(ctx context.Context, cfg config.Config) (sink.Sink, error) {
	var sinks []sink.Sink

	if cfg.RedisAddr != "" {
		rs, err := sink.NewRedisSink(ctx, sink.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		sinks = append(sinks, rs)
	}

	if cfg.CSVDir != "" {
		cs, err := sink.NewCSVSink(cfg.CSVDir)
		if err != nil {
			return nil, fmt.Errorf("csv sink: %w", err)
		}
		sinks = append(sinks, cs)
	}

	return sink.NewMultiSink(sinks...), nil
}

// newRouter builds the daemon's HTTP surface: liveness plus Prometheus
// metrics.
func newRouter(limiter *ratelimit.Limiter, circuit *breaker.Breaker, store *cache.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		if circuit.Status() == breaker.StatusOpen {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"breaker":       string(circuit.Status()),
			"rate_limiter":  limiter.Snapshot(),
			"cache_entries": store.Len(),
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// collectLoop periodically fetches the spot quote for every watchlist index.
// Fetch failures are logged and the loop moves on; the breaker and limiter
// already shape how hard the collector leans on a failing upstream.
func collectLoop(ctx context.Context, dispatcher *dispatch.Dispatcher, watchlist []string, interval time.Duration) {
	logger := logging.NewLogger("collector")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, index := range watchlist {
			key, ok := quote.IndexInstruments[strings.ToUpper(index)]
			if !ok {
				logger.Warn().Str("index", index).Msg("Unknown watchlist index - skipping")
				continue
			}

			q, err := dispatcher.Fetch(ctx, key, quote.PriorityHigh)
			if err != nil {
				logger.Warn().Err(err).Str("index", index).Msg("Watchlist fetch failed")
				continue
			}
			logger.Debug().
				Str("index", index).
				Float64("last_price", q.LastPrice).
				Msg("Watchlist quote refreshed")
		}
	}
}
