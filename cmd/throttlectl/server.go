package main

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	goThrottle "github.com/MrEthical07/goThrottle"
	promexport "github.com/MrEthical07/goThrottle/metrics/export/prometheus"
	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestIDContextKey     = "request_id"
	requestLoggerContextKey = "request_logger"
	requestIDHeader         = "X-Request-ID"
)

const tracerName = "github.com/MrEthical07/goThrottle/cmd/throttlectl"

const shutdownTimeout = 10 * time.Second

type server struct {
	engine *goThrottle.Engine
	log    zerolog.Logger
}

type attemptRequest struct {
	Action     string `json:"action" binding:"required"`
	Identifier string `json:"identifier" binding:"required"`
}

type decisionResponse struct {
	Allowed           bool       `json:"allowed"`
	RemainingAttempts int        `json:"remaining_attempts"`
	ResetAt           *time.Time `json:"reset_at,omitempty"`
	RetryAfter        string     `json:"retry_after,omitempty"`
}

type statusResponse struct {
	Action            string     `json:"action"`
	Attempts          int        `json:"attempts"`
	RemainingAttempts int        `json:"remaining_attempts"`
	Allowed           bool       `json:"allowed"`
	Blocked           bool       `json:"blocked"`
	ResetAt           *time.Time `json:"reset_at,omitempty"`
	WindowEndsAt      *time.Time `json:"window_ends_at,omitempty"`
}

type policyResponse struct {
	Action        string `json:"action"`
	MaxAttempts   int    `json:"max_attempts"`
	Window        string `json:"window"`
	BlockDuration string `json:"block_duration"`
}

func newRouter(engine *goThrottle.Engine, log zerolog.Logger) *gin.Engine {
	s := &server{engine: engine, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), withRequestContext(log))

	r.GET("/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/v1/policies", s.listPolicies)
	r.POST("/v1/check", s.check)
	r.GET("/v1/status", s.status)
	r.DELETE("/v1/entries", s.reset)
	r.POST("/v1/cleanup", s.cleanup)
	r.GET("/metrics", gin.WrapH(promexport.NewPrometheusExporter(engine).Handler()))
	return r
}

// serve runs the API until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, engine *goThrottle.Engine, log zerolog.Logger, listen string, cleanupInterval time.Duration) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              listen,
		Handler:           newRouter(engine, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cleanupInterval > 0 {
		go runCleanup(ctx, engine, log, cleanupInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", listen).Str("namespace", engine.Namespace()).Msg("throttlectl serving")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runCleanup(ctx context.Context, engine *goThrottle.Engine, log zerolog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := engine.CleanupExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("cleanup failed")
				continue
			}
			log.Debug().Int("removed", removed).Msg("cleanup finished")
		}
	}
}

func (s *server) check(c *gin.Context) {
	var req attemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "action and identifier are required", s.log)
		return
	}

	d, err := s.engine.CheckAndRecord(c.Request.Context(), req.Identifier, req.Action)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}

	resp := decisionResponse{
		Allowed:           d.Allowed,
		RemainingAttempts: d.RemainingAttempts,
		ResetAt:           optionalTime(d.ResetAt),
	}
	if d.Allowed {
		c.JSON(http.StatusOK, resp)
		return
	}

	wait := d.RetryAfter(s.engine.Now())
	resp.RetryAfter = goThrottle.FormatDuration(wait)
	c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(wait.Seconds())), 10))
	c.JSON(http.StatusTooManyRequests, resp)
}

func (s *server) status(c *gin.Context) {
	action, identifier := c.Query("action"), c.Query("identifier")
	if action == "" || identifier == "" {
		respondError(c, http.StatusBadRequest, "action and identifier are required", s.log)
		return
	}

	st, err := s.engine.GetStatus(c.Request.Context(), identifier, action)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		Action:            st.Action,
		Attempts:          st.Attempts,
		RemainingAttempts: st.RemainingAttempts,
		Allowed:           st.Allowed,
		Blocked:           st.Blocked,
		ResetAt:           optionalTime(st.ResetAt),
		WindowEndsAt:      optionalTime(st.WindowEndsAt),
	})
}

func (s *server) reset(c *gin.Context) {
	action, identifier := c.Query("action"), c.Query("identifier")
	if action == "" || identifier == "" {
		respondError(c, http.StatusBadRequest, "action and identifier are required", s.log)
		return
	}

	if err := s.engine.Reset(c.Request.Context(), identifier, action); err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) cleanup(c *gin.Context) {
	removed, err := s.engine.CleanupExpired(c.Request.Context())
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *server) listPolicies(c *gin.Context) {
	actions := s.engine.Actions()
	out := make([]policyResponse, 0, len(actions))
	for _, action := range actions {
		p, err := s.engine.Policy(action)
		if err != nil {
			s.respondEngineError(c, err)
			return
		}
		out = append(out, policyResponse{
			Action:        action,
			MaxAttempts:   p.MaxAttempts,
			Window:        p.Window.String(),
			BlockDuration: p.BlockDuration.String(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// respondEngineError maps engine errors onto HTTP statuses. An unknown action
// comes from the caller here, so it is a 400 rather than a server fault.
func (s *server) respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, goThrottle.ErrConfiguration), errors.Is(err, goThrottle.ErrInvalidIdentifier):
		respondError(c, http.StatusBadRequest, err.Error(), s.log)
	default:
		respondError(c, http.StatusServiceUnavailable, err.Error(), s.log)
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func withRequestContext(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = xid.New().String()
		}
		c.Set(requestIDContextKey, reqID)
		c.Writer.Header().Set(requestIDHeader, reqID)

		logger := base.With().Str("request_id", reqID).Str("method", c.Request.Method).Str("path", c.FullPath()).Logger()
		c.Set(requestLoggerContextKey, logger)

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := otel.Tracer(tracerName).Start(ctx, c.Request.Method+" "+c.FullPath(), trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
			attribute.String("request.id", reqID),
		)
		ctx = goThrottle.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		span.End()
	}
}

func requestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if value, ok := c.Get(requestLoggerContextKey); ok {
		if logger, ok := value.(zerolog.Logger); ok {
			return logger
		}
	}
	return fallback
}

func requestID(c *gin.Context) string {
	if value, ok := c.Get(requestIDContextKey); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

func respondError(c *gin.Context, status int, message string, fallback zerolog.Logger) {
	logger := requestLogger(c, fallback)
	entry := logger.Warn()
	if status >= http.StatusInternalServerError {
		entry = logger.Error()
	}
	entry.Int("status", status).Msg(message)
	if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
		span.AddEvent("http.error", trace.WithAttributes(
			attribute.Int("http.status_code", status),
			attribute.String("error.message", message),
		))
		if status >= http.StatusInternalServerError {
			span.RecordError(errors.New(message))
		}
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":      message,
		"request_id": requestID(c),
	})
}
