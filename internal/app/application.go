package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"studentmonitor/internal/analysis"
	"studentmonitor/internal/api"
	"studentmonitor/internal/config"
	"studentmonitor/internal/database"
	"studentmonitor/internal/history"
	"studentmonitor/internal/hub"
	"studentmonitor/internal/metrics"
	"studentmonitor/internal/router"
	"studentmonitor/internal/websocket"
	pkgdatabase "studentmonitor/pkg/database"
	"studentmonitor/pkg/interfaces"
)

// Application coordinates all system components.
// Initialization order: Metrics → Journal → History → Registry → Router → Hub → Analyzer → Handlers → HTTP
type Application struct {
	config     *config.Config
	clock      clockwork.Clock
	promReg    *prometheus.Registry
	metrics    *metrics.Metrics
	journal    *database.Manager
	registry   *websocket.Registry
	router     *router.Router
	hub        *hub.Hub
	analyzer   interfaces.Analyzer
	apiServer  *api.Server
	wsHandler  *websocket.Handler
	mux        *http.ServeMux
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication creates a new application instance with all components initialized
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	clock := clockwork.NewRealClock()

	// STEP 1: Metrics registry shared by every component
	promReg := metrics.NewRegistry()
	m := metrics.New(promReg)

	// STEP 2: Optional journal
	journal, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, err
	}
	// interfaces.Journal must stay nil, not a typed nil, when disabled
	var journalIface interfaces.Journal
	if journal != nil {
		journalIface = journal
	}

	// STEP 3: Session buffer and connection registry
	buffer := history.NewBuffer(cfg.History.Capacity)
	registry := websocket.NewRegistry(m)

	// STEP 4: Router and the hub that serializes access to it
	messageRouter := router.NewRouter(registry, buffer, m, cfg.History.SnapshotSize)
	messageHub := hub.NewHub(messageRouter, hub.Options{
		PublishQueueSize: cfg.History.PublishQueueSize,
		Journal:          journalIface,
		Metrics:          m,
		Clock:            clock,
	})

	// STEP 5: Analyzer, remote when configured
	var analyzer interfaces.Analyzer
	if cfg.Analyzer.URL != "" {
		analyzer = analysis.NewHTTPAnalyzer(cfg.Analyzer, m, clock)
		log.Printf("Using remote analyzer at %s", cfg.Analyzer.URL)
	} else {
		analyzer = analysis.NewFrameInfoAnalyzer(clock)
		log.Printf("No analyzer URL configured, records will carry frame metadata only")
	}

	// STEP 6: HTTP and WebSocket handlers
	apiServer := api.NewServer(buffer, cfg.History.SnapshotSize, registry, api.Options{
		Journal:       journalIface,
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
	})
	wsHandler := websocket.NewHandler(registry, messageHub, analyzer, cfg, websocket.HandlerOptions{
		Limiter: router.NewFrameLimiter(cfg.Limits.FramesPerSecond, cfg.Limits.FrameBurst, clock),
		Clock:   clock,
		Metrics: m,
		Journal: journalIface,
	})

	// STEP 7: Routes
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/student", wsHandler.HandleProducer)
	mux.HandleFunc("/ws/teacher", wsHandler.HandleConsumer)
	mux.Handle("/metrics", metrics.Handler(promReg))
	mux.Handle("/", apiServer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		clock:      clock,
		promReg:    promReg,
		metrics:    m,
		journal:    journal,
		registry:   registry,
		router:     messageRouter,
		hub:        messageHub,
		analyzer:   analyzer,
		apiServer:  apiServer,
		wsHandler:  wsHandler,
		mux:        mux,
		httpServer: httpServer,
	}, nil
}

func openJournal(cfg *config.JournalConfig) (*database.Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Path
	dbConfig.WriteTimeout = cfg.Timeout

	journal, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	if err := pkgdatabase.NewMigrationManager(journal.GetDB()).ApplyMigrations(); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("failed to apply journal migrations: %w", err)
	}
	if err := pkgdatabase.NewSchemaValidator(journal.GetDB()).Validate(); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("journal schema invalid: %w", err)
	}
	log.Printf("Journal ready at %s", cfg.Path)

	return journal, nil
}

// Start runs the hub first, then begins serving HTTP
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting student monitor on %s", app.httpServer.Addr)

	// STEP 1: Start the hub so submits are accepted as soon as sockets connect
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	// STEP 2: Bind, then serve in the background
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Student monitor listening on %s", listener.Addr())
		return nil
	case <-ctx.Done():
		_ = app.httpServer.Close()
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: HTTP → connections → Hub → Journal
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down student monitor")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: Hijacked WebSocket connections are not covered by Shutdown
	app.registry.CloseAll()

	// STEP 3: Stop publishing; the hub drains its journal queue before returning
	if err := app.hub.Stop(); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}

	// STEP 4: Close the journal
	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			log.Printf("Journal shutdown error: %v", err)
		}
	}

	log.Printf("Student monitor shutdown complete")
	return nil
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the routed mux, for tests and embedding
func (app *Application) Handler() http.Handler {
	return app.mux
}
