package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"blinkstream/internal/config"
	"blinkstream/internal/dedup"
	"blinkstream/internal/detection"
	"blinkstream/internal/dispatch"
	"blinkstream/internal/domain"
	"blinkstream/internal/ingestion"
	"blinkstream/internal/observability"
	"blinkstream/internal/price"
	"blinkstream/internal/solana"
	"blinkstream/internal/storage"
	chstore "blinkstream/internal/storage/clickhouse"
	"blinkstream/internal/storage/memory"
	"blinkstream/internal/storage/migrations"
	pgstore "blinkstream/internal/storage/postgres"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	shutdownTimeout   = 10 * time.Second
)

type statusReporter interface {
	Status() domain.StatusSnapshot
}

// Server holds all components of the service.
type Server struct {
	cfg    *config.Config
	logger logrus.FieldLogger

	supervisor *ingestion.Supervisor
	poller     *ingestion.PricePoller
	engine     *detection.Engine
	hub        *dispatch.Hub
	events     storage.EventStore
	status     statusReporter

	httpServer *http.Server
}

// sinks holds the persistence and fan-out targets.
type sinks struct {
	events       storage.EventStore
	observations storage.PriceObservationStore
	notifiers    []dispatch.Notifier
}

// NewServer wires every component from cfg. The returned cleanup closes
// external connections.
func NewServer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Server, func(), error) {
	out, cleanup, err := createSinks(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	rpc := solana.NewHTTPClient(cfg.RPCURL)
	feed := solana.NewWSFeed(cfg.FeedWSURL, nil)
	prices := price.NewCachedSource(price.NewHermesClient(cfg.HermesURL, cfg.PriceFeedIDs), cfg.PriceCacheTTL)

	engine := detection.NewEngine(
		detection.SurgeOptions{
			ThresholdPercent: cfg.SurgeThresholdPercent,
			CooldownMs:       cfg.SurgeCooldownMs,
			USDMultiplier:    cfg.SurgeUSDMultiplier,
		},
		detection.SwapOptions{USDThreshold: cfg.LargeSwapUSDThreshold, Token: cfg.ReferenceAsset},
		detection.WhaleOptions{
			QuantityThreshold: cfg.WhaleQtyThreshold,
			USDThreshold:      cfg.WhaleUSDThreshold,
			HistorySize:       cfg.WhaleHistorySize,
		},
	)

	hub := dispatch.NewHub(dispatch.HubOptions{Logger: logger.WithField("component", "hub")})
	notifiers := dispatch.Multi{hub, dispatch.WithTimeout(dispatch.NewStoreNotifier(out.events), cfg.NotifyTimeout)}
	for _, n := range out.notifiers {
		notifiers = append(notifiers, dispatch.WithTimeout(n, cfg.NotifyTimeout))
	}
	dispatcher := dispatch.NewDispatcher(notifiers, dispatch.Options{Logger: logger.WithField("component", "dispatch")})

	cache := dedup.New(dedup.Options{})
	processor := ingestion.NewProcessor(ingestion.ProcessorOptions{
		Dedup:          cache,
		Engine:         engine,
		Prices:         prices,
		Sink:           dispatcher,
		ReferenceAsset: cfg.ReferenceAsset,
		Logger:         logger.WithField("component", "processor"),
	})

	var backfill *ingestion.Backfiller
	if cfg.BackfillEnabled {
		backfill = ingestion.NewBackfiller(ingestion.BackfillOptions{
			RPC:           rpc,
			Processor:     processor,
			Addresses:     cfg.BackfillAddresses,
			Limit:         cfg.BackfillLimit,
			BatchSize:     cfg.BackfillBatchSize,
			LookupTimeout: cfg.BackfillLookupTimeout,
			BatchTimeout:  cfg.BackfillBatchTimeout,
			Logger:        logger,
		})
	}

	mode := domain.FilterScoped
	if !cfg.ScopedFilter {
		mode = domain.FilterBroad
	}
	supervisor := ingestion.NewSupervisor(ingestion.SupervisorOptions{
		Feed:       feed,
		Processor:  processor,
		Dedup:      cache,
		Backfill:   backfill,
		FilterMode: mode,
		Logger:     logger,
	})

	poller := ingestion.NewPricePoller(ingestion.PricePollerOptions{
		Prices:       prices,
		Surge:        engine.Surge,
		Sink:         dispatcher,
		RPC:          rpc,
		Observations: out.observations,
		Assets:       cfg.SurgeTokens,
		Interval:     cfg.SurgePollInterval,
		Logger:       logger,
	})

	s := &Server{
		cfg:        cfg,
		logger:     logger.WithField("component", "server"),
		supervisor: supervisor,
		poller:     poller,
		engine:     engine,
		hub:        hub,
		events:     out.events,
		status:     supervisor,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, cleanup, nil
}

// createSinks connects the configured stores and brokers. Without a DSN the
// in-memory store is used.
func createSinks(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*sinks, func(), error) {
	out := &sinks{
		events:       memory.NewEventStore(),
		observations: memory.NewPriceObservationStore(),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*sinks, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fail(fmt.Errorf("connect to postgres: %w", err))
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fail(fmt.Errorf("postgres migrations: %w", err))
		}
		out.events = pgstore.NewEventStore(pool)
		logger.Info("Event store: postgres")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fail(fmt.Errorf("clickhouse migrations: %w", err))
		}
		closers = append(closers, func() { conn.Close() })
		out.observations = chstore.NewPriceObservationStore(conn)
		logger.Info("Price observation store: clickhouse")
	}

	if len(cfg.KafkaBrokers) > 0 {
		k, err := dispatch.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { k.Close() })
		out.notifiers = append(out.notifiers, k)
		logger.WithField("topic", cfg.KafkaTopic).Info("Kafka notifier enabled")
	}

	if cfg.RedisURL != "" {
		r, err := dispatch.NewRedisNotifier(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { r.Close() })
		out.notifiers = append(out.notifiers, r)
		logger.WithField("channel", cfg.RedisChannel).Info("Redis notifier enabled")
	}

	return out, cleanup, nil
}

// Run starts the supervisor, the price poller and the HTTP server and blocks
// until ctx is done or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.supervisor.Run(gctx)
	})
	g.Go(func() error {
		return s.poller.Run(gctx)
	})
	g.Go(func() error {
		s.logger.WithField("addr", s.httpServer.Addr).Info("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())
	mux.Handle("GET /ws", s.hub)
	mux.HandleFunc("GET /settings/surge", s.handleGetSurgeSettings)
	mux.HandleFunc("PUT /settings/surge", s.handleUpdateSurgeSettings)
	mux.HandleFunc("GET /whales", s.handleWhales)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

type healthResponse struct {
	domain.StatusSnapshot
	WSClients int `json:"wsClients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		StatusSnapshot: s.status.Status(),
		WSClients:      s.hub.Len(),
	})
}

func (s *Server) handleGetSurgeSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Surge.Settings())
}

func (s *Server) handleUpdateSurgeSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ThresholdPercent *json.Number `json:"thresholdPercent"`
		CooldownMs       *json.Number `json:"cooldownMs"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var update detection.SurgeSettingsUpdate
	var err error
	if update.ThresholdPercent, err = parseNumber("thresholdPercent", req.ThresholdPercent); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if update.CooldownMs, err = parseNumber("cooldownMs", req.CooldownMs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := s.engine.Surge.UpdateSettings(update)
	if err != nil {
		if errors.Is(err, detection.ErrInvalidSetting) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.WithFields(logrus.Fields{
		"thresholdPercent": settings.ThresholdPercent,
		"cooldownMs":       settings.CooldownMs,
	}).Info("Surge settings updated")
	writeJSON(w, http.StatusOK, settings)
}

func parseNumber(field string, n *json.Number) (*float64, error) {
	if n == nil {
		return nil, nil
	}
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a finite number", detection.ErrInvalidSetting, field)
	}
	return &v, nil
}

type whalesResponse struct {
	Alerts []domain.WhaleAlert  `json:"alerts"`
	Stats  detection.WhaleStats `json:"stats"`
}

func (s *Server) handleWhales(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alerts := s.engine.Whale.Recent(limit)
	if alerts == nil {
		alerts = []domain.WhaleAlert{}
	}
	writeJSON(w, http.StatusOK, whalesResponse{Alerts: alerts, Stats: s.engine.Whale.Stats()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultEventLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := r.URL.Query().Get("name")
	switch name {
	case "", domain.EventSurge, domain.EventLargeSwap, domain.EventWhaleAlert:
	default:
		writeError(w, http.StatusBadRequest, "unknown event name")
		return
	}

	records, err := s.events.ListRecent(r.Context(), name, limit)
	if err != nil {
		s.logger.WithError(err).Warn("List events failed")
		writeError(w, http.StatusInternalServerError, "list events failed")
		return
	}
	if records == nil {
		records = []*domain.EventRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, maxEventLimit), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
