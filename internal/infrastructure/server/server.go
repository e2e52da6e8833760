// Package server wires the controller together: device, capture, safety
// governor, activity log, vision client, decision engine, executor,
// autonomy loop, and the HTTP/WS control surface on top.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/deskpilot/backend/internal/api/http"
	"github.com/deskpilot/backend/internal/api/middleware"
	"github.com/deskpilot/backend/internal/api/ws"
	"github.com/deskpilot/backend/internal/decision"
	"github.com/deskpilot/backend/internal/desktop"
	"github.com/deskpilot/backend/internal/domain/activity"
	"github.com/deskpilot/backend/internal/domain/autonomy"
	"github.com/deskpilot/backend/internal/domain/executor"
	"github.com/deskpilot/backend/internal/domain/safety"
	"github.com/deskpilot/backend/internal/infrastructure/config"
	"github.com/deskpilot/backend/internal/infrastructure/logging"
	"github.com/deskpilot/backend/internal/infrastructure/monitoring"
	"github.com/deskpilot/backend/internal/infrastructure/tracing"
	"github.com/deskpilot/backend/internal/vision"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	router   *gin.Engine
	loop     *autonomy.Loop
	governor *safety.Governor
	activity *activity.Log
	sink     *lumberjack.Logger
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing deskpilot controller",
		zap.String("port", cfg.Server.Port),
		zap.String("vision_provider", cfg.Vision.Provider),
	)

	metrics := monitoring.NewMetrics()

	// Safety policy is loaded once; only the emergency flag mutates later.
	policy, err := config.LoadPolicy(cfg.Safety.PolicyPath)
	if err != nil {
		return nil, err
	}
	governor := safety.NewGovernor(policy)
	logger.Info("Safety policy loaded",
		zap.Int("max_actions", policy.MaxActions),
		zap.Duration("window", policy.Window),
		zap.Int("restricted_zones", len(policy.RestrictedZones)),
		zap.Int("forbidden_titles", len(policy.ForbiddenTitles)),
	)

	// Activity trail mirrors to a rotating JSONL file.
	sink := &lumberjack.Logger{
		Filename:   cfg.Activity.Path,
		MaxSize:    cfg.Activity.MaxSizeMB,
		MaxBackups: cfg.Activity.MaxBackups,
		Compress:   true,
	}
	activityLog := activity.NewLog(activity.WithSink(sink))

	device := desktop.NewXDoTool(
		desktop.WithTimeout(cfg.Device.Timeout),
		desktop.WithTypeDelay(int(cfg.Device.TypeDelay/time.Millisecond)),
	)
	capture := desktop.NewScrot(desktop.WithQuality(cfg.Device.Quality))

	visionClient, err := vision.New(context.Background(), vision.Config{
		Provider:    cfg.Vision.Provider,
		BaseURL:     cfg.Vision.BaseURL,
		APIKey:      cfg.Vision.APIKey,
		Model:       cfg.Vision.Model,
		MaxTokens:   cfg.Vision.MaxTokens,
		Temperature: cfg.Vision.Temperature,
		Timeout:     cfg.Vision.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	logger.Info("Vision client ready", zap.String("provider", visionClient.Provider()))

	engine := decision.NewEngine(visionClient, logger,
		decision.WithTimeout(cfg.Vision.Timeout),
		decision.WithMetrics(metrics),
	)

	exec := executor.New(device, capture, governor, activityLog, logger).WithMetrics(metrics)

	loop := autonomy.NewLoop(capture, engine, exec, governor, activityLog, logger,
		autonomy.WithInterval(cfg.Loop.Interval),
		autonomy.WithHistoryWindow(cfg.Loop.HistoryWindow),
		autonomy.WithMetrics(metrics),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	tracer := tracing.New("deskpilot", logger.Logger)

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := http.NewHandlers(exec, capture, loop, governor, activityLog, logger, cfg.Loop.StepBudget)
	wsHandler := ws.NewHandler(capture, activityLog, logger, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)

	// Direct device control
	router.POST("/move", handlers.Move)
	router.POST("/click", handlers.Click)
	router.POST("/type", handlers.Type)
	router.POST("/key", handlers.Key)
	router.GET("/windows", handlers.Windows)
	router.POST("/activate", handlers.Activate)
	router.GET("/screenshot", handlers.Screenshot)

	// Audit trail
	router.GET("/activity", handlers.Activity)

	// Autonomy control
	router.POST("/start-autonomy", handlers.StartAutonomy)
	router.POST("/stop-autonomy", handlers.StopAutonomy)
	router.POST("/emergency-stop", handlers.EmergencyStop)
	router.POST("/emergency-stop/reset", handlers.ResetEmergencyStop)

	// WebSocket observers
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		loop:     loop,
		governor: governor,
		activity: activityLog,
		sink:     sink,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router exposes the configured engine, primarily for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Close gracefully shuts down the server. Any running autonomy task is
// halted the hard way so nothing acts after shutdown begins.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.governor.TriggerEmergencyStop()
	s.loop.Interrupt()
	if done := s.loop.Done(); done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			s.logger.Warn("autonomy loop did not stop before shutdown deadline")
		}
	}

	if err := s.sink.Close(); err != nil {
		s.logger.Warn("Failed to close activity sink", zap.Error(err))
	}

	s.logger.Sync()
	return nil
}
