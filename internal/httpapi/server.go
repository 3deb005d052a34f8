package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/mtgate/internal/jobs"
	"horse.fit/mtgate/internal/locale"
	"horse.fit/mtgate/internal/metrics"
	"horse.fit/mtgate/internal/translation"
)

// JobService is the job lifecycle as seen by the HTTP layer.
type JobService interface {
	SubmitAsync(ctx context.Context, req translation.Request) (jobs.ID, error)
	QueryStatus(id jobs.ID) (jobs.Status, error)
	QueryResult(id jobs.ID) (*translation.Response, error)
	TranslateSync(ctx context.Context, req translation.Request) (*translation.Response, error)
	Ready() bool
}

type Options struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	BodyLimit          string
	CORSAllowedOrigins []string
	LanguagePairs      []locale.Pair
	// APIKeys guards every route except /status and /metrics when enabled.
	APIKeys KeyVerifier
	// Readiness is consulted by the status endpoint in addition to JobService.Ready.
	Readiness func(ctx context.Context) error
}

type Server struct {
	jobs    JobService
	metrics *metrics.Metrics
	logger  zerolog.Logger
	opts    Options
}

func NewServer(svc JobService, m *metrics.Metrics, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 6 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	bodyLimit := strings.TrimSpace(opts.BodyLimit)
	if bodyLimit == "" {
		bodyLimit = "10M"
	}
	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		jobs:    svc,
		metrics: m,
		logger:  logger,
		opts: Options{
			Host:               host,
			Port:               port,
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			ShutdownTimeout:    shutdownTimeout,
			BodyLimit:          bodyLimit,
			CORSAllowedOrigins: origins,
			LanguagePairs:      opts.LanguagePairs,
			APIKeys:            opts.APIKeys,
			Readiness:          opts.Readiness,
		},
	}
}

// Handler builds the echo instance with middleware and routes.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", apiKeyHeader},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))
	e.Use(s.logHeaders())
	if s.metrics != nil {
		e.Use(s.observeRequests("/metrics"))
	}
	if s.opts.APIKeys != nil && s.opts.APIKeys.Enabled() {
		e.Use(s.requireAPIKey("/status", "/metrics"))
	}
	e.Use(middleware.BodyLimit(s.opts.BodyLimit))

	e.POST("/languages", s.handleLanguages)
	e.POST("/status", s.handleStatus)
	e.POST("/translate", s.handleTranslate)
	e.POST("/translateAsync", s.handleTranslateAsync)
	e.GET("/translateAsyncStatus/:jobId", s.handleTranslateAsyncStatus)
	e.GET("/translateAsyncResult/:jobId", s.handleTranslateAsyncResult)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.jobs == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("mtgate server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("mtgate server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var jobErr *jobs.Error
	if errors.As(err, &jobErr) {
		_ = s.writeJobError(c, err)
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unhandled handler error")
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Cookie":              {},
	"Proxy-Authorization": {},
	"X-Api-Key":           {},
}

// logHeaders logs request headers at debug level with credentials redacted.
func (s *Server) logHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.logger.GetLevel() > zerolog.DebugLevel {
				return next(c)
			}

			headers := zerolog.Dict()
			for name, values := range c.Request().Header {
				if _, sensitive := sensitiveHeaders[name]; sensitive {
					headers.Str(name, "[redacted]")
					continue
				}
				headers.Str(name, strings.Join(values, ", "))
			}
			s.logger.Debug().
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Dict("headers", headers).
				Msg("http request headers")
			return next(c)
		}
	}
}

func (s *Server) observeRequests(skipPaths ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip[c.Request().URL.Path] {
				return next(c)
			}

			start := time.Now()
			// Render the error here so the recorded status is final; the
			// error is consumed and not handled a second time by echo.
			if err := next(c); err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			s.metrics.ObserveRequest(c.Request().Method, path, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
