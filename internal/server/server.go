// Package server exposes the adapter's HTTP surface: outbound triggers,
// callback endpoints, data views, and operational endpoints. Handlers are
// thin; all protocol logic lives in the packages they call.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fisbap/internal/correlate"
	"fisbap/internal/dispatch"
	"fisbap/internal/ingest"
	"fisbap/internal/logging"
	"fisbap/internal/orchestrate"
	"fisbap/internal/synth"
	"fisbap/pkg/config"
	"fisbap/pkg/ports"
)

// Server wires the HTTP surface over the protocol components
type Server struct {
	cfg        *config.Config
	synth      *synth.Synthesizer
	dispatcher *dispatch.Dispatcher
	correlator *correlate.Correlator
	ingestor   *ingest.Ingestor
	flow       *orchestrate.Flow
	store      ports.MessageStorePort
	catalog    ports.CatalogPort
	kyc        ports.KYCPort
	logger     *logging.Logger
	engine     *gin.Engine
}

// Deps carries the collaborators the server routes to
type Deps struct {
	Config     *config.Config
	Synth      *synth.Synthesizer
	Dispatcher *dispatch.Dispatcher
	Correlator *correlate.Correlator
	Ingestor   *ingest.Ingestor
	Flow       *orchestrate.Flow
	Store      ports.MessageStorePort
	Catalog    ports.CatalogPort
	KYC        ports.KYCPort
}

// New builds the server and its router
func New(deps Deps) *Server {
	s := &Server{
		cfg:        deps.Config,
		synth:      deps.Synth,
		dispatcher: deps.Dispatcher,
		correlator: deps.Correlator,
		ingestor:   deps.Ingestor,
		flow:       deps.Flow,
		store:      deps.Store,
		catalog:    deps.Catalog,
		kyc:        deps.KYC,
		logger:     logging.NewDefaultLogger("server"),
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	if s.cfg != nil && s.cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	// Outbound triggers
	r.POST("/search", s.handleSearch)
	r.POST("/select", s.handleSelect)
	r.POST("/formsub", s.handleFormSubmission)
	r.POST("/docsub", s.handleDocumentSubmission)
	r.POST("/init", s.handleInit)
	r.POST("/confirm", s.handleConfirm)
	r.POST("/status", s.handleStatus)
	r.POST("/cancel", s.handleCancel)
	r.POST("/update", s.handleUpdate)

	// Network callbacks
	for _, stage := range []ports.Stage{
		ports.StageOnSearch, ports.StageOnSelect, ports.StageOnInit,
		ports.StageOnConfirm, ports.StageOnStatus, ports.StageOnUpdate,
		ports.StageOnCancel,
	} {
		r.POST("/"+string(stage), s.callbackHandler(stage))
	}

	// Data views
	r.GET("/callbacks/:stage", s.handleCallbackView)
	r.GET("/transactions/:transaction_id/state", s.handleState)
	r.GET("/transactions/:transaction_id/pan", s.handlePAN)
	r.GET("/schemes/:isin", s.handleSchemeByISIN)
	r.GET("/providers", s.handleProviders)

	// Orchestrated flow
	r.POST("/flow/complete", s.handleCompleteFlow)

	// Operational
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Router exposes the engine for tests
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Run serves until the listener fails
func (s *Server) Run() error {
	addr := ":8000"
	if s.cfg != nil && s.cfg.App.ListenAddr != "" {
		addr = s.cfg.App.ListenAddr
	}
	s.logger.Info("listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.LogEvent("http_request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
