package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chatwarden/warden/countstore"
	"github.com/chatwarden/warden/dispatch"
	"github.com/chatwarden/warden/engine"
	"github.com/chatwarden/warden/memberstore"
	"github.com/chatwarden/warden/policy"
	"github.com/chatwarden/warden/verdict"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	_ "go.uber.org/automaxprocs"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "wardend",
		Usage:   "group chat moderation decision engine",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn)",
			Value:   "info",
			EnvVars: []string{"WARDEND_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the moderation daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":2470",
			EnvVars: []string{"WARDEND_BIND"},
		},
		&cli.StringFlag{
			Name:    "db-url",
			Usage:   "database connection string (sqlite:// or postgres://), or mem:// for ephemeral",
			Value:   "sqlite://data/wardend/warden.sqlite",
			EnvVars: []string{"WARDEND_DB_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Usage:   "limit on size of database connection pool",
			Value:   40,
			EnvVars: []string{"WARDEND_MAX_DB_CONNECTIONS", "MAX_DB_CONNECTIONS"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "enable OTEL tracing on database queries",
			Value:   false,
			EnvVars: []string{"WARDEND_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection for counters and verdict cache (eg: redis://localhost:6379), in-process if empty",
			EnvVars: []string{"WARDEND_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "policy-file",
			Usage:   "path to JSON policy overrides, merged over the built-in defaults",
			EnvVars: []string{"WARDEND_POLICY_FILE"},
		},
		&cli.StringFlag{
			Name:    "keyword-file",
			Usage:   "path to JSON keyword rules for the built-in classifier",
			EnvVars: []string{"WARDEND_KEYWORD_FILE"},
		},
		&cli.StringFlag{
			Name:    "classifier-host",
			Usage:   "method, hostname, and port of a remote classifier service; keyword classifier if empty",
			EnvVars: []string{"WARDEND_CLASSIFIER_HOST"},
		},
		&cli.StringFlag{
			Name:    "classifier-password",
			Usage:   "admin auth password for the remote classifier",
			EnvVars: []string{"WARDEND_CLASSIFIER_PASSWORD"},
		},
		&cli.IntFlag{
			Name:    "classifier-ratelimit",
			Usage:   "max requests per second to the remote classifier",
			Value:   10,
			EnvVars: []string{"WARDEND_CLASSIFIER_RATELIMIT"},
		},
		&cli.DurationFlag{
			Name:    "classifier-timeout",
			Usage:   "per-event classification deadline, overrides the policy value when set",
			EnvVars: []string{"WARDEND_CLASSIFIER_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "verdict-cache-ttl",
			Usage:   "how long classifier verdicts stay cached",
			Value:   30 * time.Minute,
			EnvVars: []string{"WARDEND_VERDICT_CACHE_TTL"},
		},
		&cli.StringFlag{
			Name:    "webhook-url",
			Usage:   "URL to POST dispatch events to; log-only if empty",
			EnvVars: []string{"WARDEND_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "webhook-token",
			Usage:   "bearer token sent with webhook deliveries",
			EnvVars: []string{"WARDEND_WEBHOOK_TOKEN"},
		},
		&cli.DurationFlag{
			Name:    "compact-interval",
			Usage:   "how often expired strikes are purged from storage",
			Value:   time.Hour,
			EnvVars: []string{"WARDEND_COMPACT_INTERVAL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger := configLogger(cctx, os.Stdout)
		slog.SetDefault(logger)

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			slog.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				log.Fatal("failed to create trace exporter", "error", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					slog.Error("failed to shutdown trace exporter", "error", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("wardend"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),
					attribute.String("exporter", "otlp"),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		pol := policy.DefaultPolicy()
		if path := cctx.String("policy-file"); path != "" {
			loaded, err := policy.LoadFromFileJSON(path)
			if err != nil {
				return fmt.Errorf("loading policy file: %w", err)
			}
			pol = *loaded
			logger.Info("loaded moderation policy", "path", path)
		}
		if d := cctx.Duration("classifier-timeout"); d > 0 {
			pol.ClassifierTimeout = policy.Duration(d)
		}

		store, err := configStore(cctx, logger)
		if err != nil {
			return err
		}

		var counters countstore.CountStore
		redisURL := cctx.String("redis-url")
		if redisURL != "" {
			rcs, err := countstore.NewRedisCountStore(redisURL)
			if err != nil {
				return fmt.Errorf("initializing redis countstore: %w", err)
			}
			logger.Info("using redis countstore", "url", redisURL)
			counters = rcs
		} else {
			logger.Info("using in-process countstore")
			counters = countstore.NewMemCountStore()
		}

		var inner verdict.Source
		if host := cctx.String("classifier-host"); host != "" {
			logger.Info("using remote classifier", "host", host)
			inner = verdict.NewRemoteSource(host, cctx.String("classifier-password"), cctx.Int("classifier-ratelimit"))
		} else {
			ks := verdict.NewKeywordSource()
			if path := cctx.String("keyword-file"); path != "" {
				if err := ks.LoadFromFileJSON(path); err != nil {
					return fmt.Errorf("loading keyword file: %w", err)
				}
				logger.Info("loaded keyword rules", "path", path)
			}
			inner = ks
		}
		verdicts, err := verdict.NewCachedSource(inner, redisURL, cctx.Duration("verdict-cache-ttl"))
		if err != nil {
			return fmt.Errorf("initializing verdict cache: %w", err)
		}

		dispatchers := []engine.Dispatcher{dispatch.NewAuditLogger(logger)}
		if whURL := cctx.String("webhook-url"); whURL != "" {
			logger.Info("webhook dispatch enabled", "url", whURL)
			dispatchers = append(dispatchers, dispatch.NewWebhook(whURL, cctx.String("webhook-token"), logger))
		}
		var dispatcher engine.Dispatcher = dispatchers[0]
		if len(dispatchers) > 1 {
			dispatcher = dispatch.NewMulti(dispatchers...)
		}

		eng, err := engine.New(engine.Config{
			Logger:     logger,
			Policy:     pol,
			Store:      store,
			Verdicts:   verdicts,
			Counters:   counters,
			Dispatcher: dispatcher,
		})
		if err != nil {
			return fmt.Errorf("initializing engine: %w", err)
		}

		srv := NewServer(eng, logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

		// Periodically purge expired strikes from storage.
		if interval := cctx.Duration("compact-interval"); interval > 0 {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						removed, err := eng.Compact(ctx, time.Now())
						if err != nil {
							logger.Error("strike compaction failed", "err", err)
						} else if removed > 0 {
							logger.Info("purged expired strikes", "count", removed)
						}
					}
				}
			}()
		}

		svcErr := make(chan error, 1)
		go func() {
			bind := cctx.String("bind")
			logger.Info("starting HTTP server", "bind", bind)
			if err := srv.Run(bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
				svcErr <- err
			}
		}()

		logger.Info("startup complete")
		select {
		case sig := <-signals:
			logger.Info("received shutdown signal", "signal", sig)
		case err := <-svcErr:
			if err != nil {
				logger.Error("service error", "error", err)
			}
		}

		logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
			return err
		}

		if _, err := eng.Compact(shutdownCtx, time.Now()); err != nil {
			logger.Warn("final strike compaction failed", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func configStore(cctx *cli.Context, logger *slog.Logger) (memberstore.Store, error) {
	dbURL := cctx.String("db-url")
	if dbURL == "" || strings.HasPrefix(dbURL, "mem://") {
		logger.Info("using ephemeral in-process member store")
		return memberstore.NewMemStore(), nil
	}
	db, err := memberstore.SetupDatabase(dbURL, cctx.Int("max-db-connections"))
	if err != nil {
		return nil, fmt.Errorf("setting up database: %w", err)
	}
	if cctx.Bool("db-tracing") {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
	}
	store, err := memberstore.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing member store: %w", err)
	}
	logger.Info("using database member store")
	return store, nil
}

func configLogger(cctx *cli.Context, writer *os.File) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
}
