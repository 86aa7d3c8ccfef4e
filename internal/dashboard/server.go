package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tradersentiment/config"
	"tradersentiment/internal/analytics"
	"tradersentiment/internal/metrics"
	"tradersentiment/logger"
	"tradersentiment/models"
	"tradersentiment/processor"
	"tradersentiment/reader"
)

//go:embed templates/*.tmpl
var embeddedFS embed.FS

// LiveFetcher returns recent market trades. It never fails; an empty slice
// means nothing could be fetched.
type LiveFetcher interface {
	Fetch(ctx context.Context, symbol string, limit int) []models.LiveTrade
}

// Server hosts the sentiment dashboard and its JSON API.
type Server struct {
	cfg             config.DashboardConfig
	data            config.DataConfig
	live            config.LiveConfig
	opts            analytics.Options
	log             *logger.Log
	panels          *panelCache
	fetcher         LiveFetcher
	metricStore     *metricStore
	logStore        *logStore
	metricHandler   metrics.MetricHandlerID
	httpServer      *http.Server
	resourceSampler *resourceSampler
}

// NewServer constructs the dashboard when it is enabled and returns nil
// otherwise. fetcher may be nil when the live feed is disabled.
func NewServer(cfg *config.Config, log *logger.Log, opener *reader.Opener, fetcher LiveFetcher) (*Server, error) {
	if !cfg.Dashboard.Enabled {
		return nil, nil
	}
	if opener == nil {
		return nil, errors.New("dashboard requires a source opener")
	}

	build := func(ctx context.Context, tradesPath, sentimentPath string) (*processor.Result, error) {
		return processor.BuildPanel(ctx, opener, tradesPath, sentimentPath)
	}
	return newServer(cfg, log, opener, build, fetcher), nil
}

func newServer(cfg *config.Config, log *logger.Log, signer Signer, build Builder, fetcher LiveFetcher) *Server {
	dash := cfg.Dashboard
	dash.Address = normalizeAddress(dash.Address)
	if dash.RefreshInterval <= 0 {
		dash.RefreshInterval = 5 * time.Second
	}
	if dash.LogHistory <= 0 {
		dash.LogHistory = 200
	}
	if dash.MetricsHistory <= 0 {
		dash.MetricsHistory = 200
	}
	if dash.PreviewRows <= 0 {
		dash.PreviewRows = 10
	}

	metricStore := newMetricStore(dash.MetricsHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(dash.LogHistory)
	log.AddHook(logStore)

	dataDir := "."
	if p := cfg.Data.TradesPath; p != "" && !strings.HasPrefix(p, "s3://") {
		dataDir = filepath.Dir(p)
	}

	if !cfg.Live.Enabled {
		fetcher = nil
	}

	return &Server{
		cfg:             dash,
		data:            cfg.Data,
		live:            cfg.Live,
		opts:            analytics.OptionsFromConfig(cfg.Analytics),
		log:             log,
		panels:          newPanelCache(signer, build),
		fetcher:         fetcher,
		metricStore:     metricStore,
		logStore:        logStore,
		metricHandler:   handlerID,
		resourceSampler: newResourceSampler(dash.MetricsHistory, dash.RefreshInterval, dataDir, log),
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"address":        s.cfg.Address,
		"trades_path":    s.data.TradesPath,
		"sentiment_path": s.data.SentimentPath,
		"live_enabled":   s.fetcher != nil,
	}).Info("dashboard listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
	s.resourceSampler.stop()
}

// Address reports the network address the dashboard listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

// Warm builds the panel once so the first request is served from cache.
func (s *Server) Warm(ctx context.Context) error {
	_, err := s.panels.get(ctx, s.data.TradesPath, s.data.SentimentPath)
	return err
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl := template.Must(template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl"))
	router.SetHTMLTemplate(tmpl)

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": int(s.cfg.RefreshInterval / time.Millisecond),
			"Sentiments":        models.Sentiments,
			"LiveEnabled":       s.fetcher != nil,
			"Symbol":            s.live.Symbol,
		})
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.GET("/panel", s.handlePanel)
	api.POST("/panel/refresh", s.handleRefresh)
	api.GET("/status", s.handleStatus)
	api.GET("/kpis", s.handleKPIs)
	api.GET("/sentiment/distribution", s.handleDistribution)
	api.GET("/correlation", s.handleCorrelation)
	api.GET("/clusters", s.handleClusters)
	api.GET("/risk", s.handleRisk)
	api.GET("/models/pnl", s.handlePnLModel)
	api.GET("/models/win", s.handleWinModel)
	api.GET("/live", s.handleLive)
	api.GET("/export/panel.xlsx", s.handleExport)
	api.GET("/metrics", s.handleMetrics)
	api.GET("/logs", s.handleLogs)
	api.GET("/resources", s.handleResources)

	return router, nil
}

// observe tags each request with an id and counts responses per route.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.IncrementRequest(route, strconv.Itoa(c.Writer.Status()))
		s.log.WithComponent("dashboard").WithFields(logger.Fields{
			"request_id":  id,
			"route":       route,
			"status":      c.Writer.Status(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
		}).Debug("request served")
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
