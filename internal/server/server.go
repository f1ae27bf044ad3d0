/*
Copyright (C) 2026 The YTStream Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/snipersonu/ytstreamm1/internal/api"
	"github.com/snipersonu/ytstreamm1/internal/auth"
	"github.com/snipersonu/ytstreamm1/internal/config"
	"github.com/snipersonu/ytstreamm1/internal/db"
	"github.com/snipersonu/ytstreamm1/internal/eventbus"
	"github.com/snipersonu/ytstreamm1/internal/events"
	"github.com/snipersonu/ytstreamm1/internal/health"
	"github.com/snipersonu/ytstreamm1/internal/leaselock"
	"github.com/snipersonu/ytstreamm1/internal/logbuffer"
	"github.com/snipersonu/ytstreamm1/internal/media"
	"github.com/snipersonu/ytstreamm1/internal/pipeline"
	"github.com/snipersonu/ytstreamm1/internal/playlist"
	"github.com/snipersonu/ytstreamm1/internal/recycler"
	"github.com/snipersonu/ytstreamm1/internal/stream"
	"github.com/snipersonu/ytstreamm1/internal/telemetry"
	"github.com/snipersonu/ytstreamm1/internal/version"
	"github.com/snipersonu/ytstreamm1/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	bus        *events.Bus
	logBuffer  *logbuffer.Buffer
	api        *api.API
	supervisor *stream.Supervisor
	playlists  *playlist.Service
	media      *media.Service
	sampler    *health.Sampler
	webhookSvc *webhooks.Service
	recycler   *recycler.Service
	checker    *version.Checker
	tracer     *telemetry.TracerProvider

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("ytstream-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket and large-upload connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip timeout middleware for WebSocket upgrade requests
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			// Skip timeout for uploads that can legitimately exceed the request middleware timeout.
			if r.URL.Path == "/api/v1/media/upload" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	// Every buffered log line is also broadcast, so the WebSocket feed
	// and the relays carry logs alongside status.
	if logBuf != nil {
		logBuf.SetNotify(func(e logbuffer.LogEntry) {
			srv.bus.Publish(events.EventLog, events.Payload{
				"time":      e.Timestamp.UTC().Format(time.RFC3339),
				"level":     e.Level,
				"component": e.Component,
				"message":   e.Message,
			})
		})
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: srv.router,
		// Keep header deadline to protect against slowloris, but do not enforce a full-body
		// read deadline so large uploads are not terminated mid-request.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		// WriteTimeout set to 0 for WebSocket support - handlers manage their own deadlines
		// The middleware timeout (60s) handles regular routes
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	ctx := context.Background()

	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		s.logger.Warn().Err(err).Msg("database metrics callbacks unavailable")
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	tracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "ytstream",
		ServiceVersion: version.Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	s.tracer = tracer
	s.DeferClose(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracer.Shutdown(shutdownCtx)
	})

	if err := auth.EnsureAdmin(ctx, database, s.cfg.AdminUser, s.cfg.AdminPassword, s.logger); err != nil {
		return fmt.Errorf("ensure admin account: %w", err)
	}

	if s.cfg.StorageBackend == config.StorageFilesystem {
		if err := os.MkdirAll(s.cfg.MediaRoot, 0755); err != nil {
			return fmt.Errorf("failed to create media directory %s: %w", s.cfg.MediaRoot, err)
		}
		s.logger.Info().Str("path", s.cfg.MediaRoot).Msg("media directory ready")
	}

	mediaService, err := media.NewService(ctx, s.cfg, database, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media service: %w", err)
	}
	s.media = mediaService
	if err := mediaService.CheckStorageAccess(); err != nil {
		s.logger.Warn().Err(err).Msg("media storage not accessible at startup")
	}

	s.playlists = playlist.NewService(database, s.bus, s.logger)

	// Sink guard: a Redis lease when configured, a process-local mutex
	// otherwise. The Redis guard is what stops two instances pushing to
	// the same ingest credential.
	var guard stream.SinkGuard
	if s.cfg.SinkLeaseEnabled {
		redisGuard, err := leaselock.NewRedisGuard(leaselock.Config{
			RedisAddr:     s.cfg.RedisAddr,
			RedisPassword: s.cfg.RedisPassword,
			RedisDB:       s.cfg.RedisDB,
			InstanceID:    s.cfg.InstanceID,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("initialize sink lease guard: %w", err)
		}
		s.DeferClose(redisGuard.Close)
		guard = redisGuard
	} else {
		guard = leaselock.NewLocalGuard()
	}

	invoker := pipeline.NewInvoker(s.cfg.FFmpegBin, s.logger)

	s.supervisor = stream.NewSupervisor(stream.Deps{
		Invoker:   invoker,
		Playlists: s.playlists,
		Resolver:  mediaService,
		Publisher: s.bus,
		Guard:     guard,
		Prober:    mediaService,
		Checker:   s.playlists,
		SinkBase:  s.cfg.RTMPBase,
		Timings: stream.Timings{
			RestartBackoff:    s.cfg.RestartBackoff,
			RestartSettle:     s.cfg.RestartSettle,
			AdvanceDelay:      s.cfg.AdvanceDelay,
			ErrorAdvanceDelay: s.cfg.ErrorAdvanceDelay,
		},
		Logger: s.logger,
	})

	s.sampler = health.NewSampler(s.supervisor, database, s.bus, health.Options{
		Interval:          s.cfg.HealthInterval,
		AnalyticsInterval: s.cfg.AnalyticsInterval,
		RingSize:          s.cfg.AlertRingSize,
	}, s.logger)

	s.webhookSvc = webhooks.NewService(database, s.bus, s.cfg.WebhookURL, s.cfg.WebhookSecret, s.logger)

	if s.cfg.RecycleRule != "" {
		recycleSvc, err := recycler.New(s.cfg.RecycleRule, s.supervisor, s.logger)
		if err != nil {
			return fmt.Errorf("initialize recycler: %w", err)
		}
		s.recycler = recycleSvc
	}

	s.initRelays()

	s.checker = version.NewChecker(s.logger)

	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), s.supervisor, s.playlists, mediaService, s.webhookSvc, s.sampler, s.checker, s.bus, s.logBuffer, s.logger)

	return nil
}

// initRelays mirrors bus events onto external brokers. Relay failures
// never block startup; local delivery works without them.
func (s *Server) initRelays() {
	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID, _ = os.Hostname()
	}

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		relay, err := eventbus.NewNATSRelay(natsCfg, s.bus, nodeID, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("NATS relay unavailable, continuing without it")
		} else {
			s.DeferClose(relay.Close)
		}
	}

	// The Redis relay rides on the same Redis the lease guard uses; it
	// is only wired when that deployment shape is configured.
	if s.cfg.SinkLeaseEnabled {
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		relay, err := eventbus.NewRedisRelay(redisCfg, s.bus, nodeID, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Redis relay unavailable, continuing without it")
		} else {
			s.DeferClose(relay.Close)
		}
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	// Wind the stream down before stopping workers so the final status
	// broadcasts still reach bus subscribers.
	if s.supervisor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.supervisor.Close(ctx); err != nil {
			s.logger.Error().Err(err).Msg("supervisor shutdown error")
		}
		cancel()
	}
	if s.checker != nil {
		s.checker.Stop()
	}
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.sampler != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.sampler.Start(ctx)
		}()
	}

	if s.webhookSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.webhookSvc.Start(ctx)
		}()
	}

	if s.recycler != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.recycler.Start(ctx)
		}()
	}

	// The first update check calls out to GitHub; keep it off the boot path.
	if s.checker != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.checker.Start(ctx)
		}()
	}

	// Start database metrics updater
	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
