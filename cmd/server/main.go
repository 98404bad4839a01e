package main

import (
	"context"
	"database/sql"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-tracker/internal/auth"
	"github.com/technosupport/ts-tracker/internal/config"
	"github.com/technosupport/ts-tracker/internal/counters"
	"github.com/technosupport/ts-tracker/internal/deferred"
	"github.com/technosupport/ts-tracker/internal/events"
	"github.com/technosupport/ts-tracker/internal/perf"
	"github.com/technosupport/ts-tracker/internal/ratelimit"
	"github.com/technosupport/ts-tracker/internal/tokens"
	"github.com/technosupport/ts-tracker/internal/tracker"
)

func main() {
	cfgPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	store := config.NewStore(*cfgPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.StartWatcher(ctx)

	// Shared Redis client; the hook feeds per-request call counts.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rdb.AddHook(perf.RedisHook{})

	// Database is optional; without it SQL perf headers just stay at zero.
	var db *perf.DB
	if cfg.Database.DSN != "" {
		raw, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("DB open error: %v", err)
		}
		if err := raw.Ping(); err != nil {
			log.Fatalf("DB ping error: %v", err)
		}
		db = perf.WrapDB(raw)
	}

	// Components
	tokenMgr := tokens.NewManager(cfg.Secrets.APIKey)
	resolver := auth.NewResolver(cfg.Secrets.Cookie, tokenMgr, rdb)

	exceptions, err := ratelimit.ParseExceptions(cfg.RateLimit.Exceptions)
	if err != nil {
		log.Fatalf("rate limit exceptions: %v", err)
	}
	policy := ratelimit.NewPolicy(ratelimit.NewLimiter(rdb),
		cfg.RateLimit.PerIP.Limit(), cfg.RateLimit.PerUser.Limit(), exceptions)

	sink := counters.MultiSink{
		counters.NewPromSink(prometheus.DefaultRegisterer),
		counters.NewRedisSink(rdb),
	}

	logger := deferred.New(1024)

	trk := tracker.New(tracker.Options{
		Resolver: resolver,
		Limits:   policy,
		Sink:     sink,
		Logger:   logger,
		Settings: store.Settings,
	})

	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("ts-tracker"))
		if err != nil {
			log.Printf("Warning: NATS connect failed: %v. Event publishing disabled.", err)
		} else {
			pub := events.NewPublisher(nc, cfg.NATS.Subject, cfg.NATS.MaxRetries)
			trk.Registry().Register(pub.Callback())
			log.Printf("Publishing request events to %s", cfg.NATS.Subject)
		}
	}

	// Routing
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(tracker.RequestLogger)
	r.Use(trk.Middleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html><body><h1>ts-tracker</h1></body></html>")
	})

	r.Get("/message-bus/{clientID}/poll", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		io.WriteString(w, "[]")
	})

	r.Get("/db/ping", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "no database configured", http.StatusServiceUnavailable)
			return
		}
		var one int
		if err := db.QueryRowContext(r.Context(), "SELECT 1").Scan(&one); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "OK")
	})

	// Health & metrics bypass tracking.
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tracker.Skip(r.Context())
				next.ServeHTTP(w, r)
			})
		})
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.Handler())
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("ts-tracker listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	}

	// Drain pending counter writes before exit.
	logger.Close()
	log.Println("Server stopped gracefully")
}
