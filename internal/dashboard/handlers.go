package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradersentiment/internal/analytics"
	"tradersentiment/logger"
	"tradersentiment/models"
	"tradersentiment/processor"
	"tradersentiment/reader/binance"
	"tradersentiment/writer"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// statusFor maps pipeline and analytics errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInsufficientData),
		errors.Is(err, models.ErrSchema),
		errors.Is(err, models.ErrConfiguration),
		errors.Is(err, models.ErrFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	entry := s.log.WithComponent("dashboard").WithError(err).WithFields(logger.Fields{
		"route":      c.FullPath(),
		"request_id": c.GetString("request_id"),
		"status":     code,
	})
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) result(c *gin.Context) (*processor.Result, bool) {
	res, err := s.panels.get(c.Request.Context(), s.data.TradesPath, s.data.SentimentPath)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return res, true
}

// filteredPanel applies ?classification=a,b. Unknown labels are ignored; a
// filter naming only unknown labels matches nothing.
func (s *Server) filteredPanel(c *gin.Context) (*models.Panel, *processor.Result, bool) {
	res, ok := s.result(c)
	if !ok {
		return nil, nil, false
	}
	labels := queryList(c, "classification")
	if len(labels) == 0 {
		return res.Panel, res, true
	}
	keep := analytics.ParseClassifications(labels)
	if len(keep) == 0 {
		return &models.Panel{Columns: res.Panel.Columns}, res, true
	}
	return res.Panel.FilterByClassification(keep...), res, true
}

func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryInt(c *gin.Context, key string, def, min, max int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		badRequest(c, key+" must be an integer between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
		return 0, false
	}
	return v, true
}

func (s *Server) handlePanel(c *gin.Context) {
	panel, res, ok := s.filteredPanel(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0, 0, 1<<30)
	if !ok {
		return
	}
	rows := panel.Records()
	total := len(rows)
	if limit > 0 && limit < total {
		rows = rows[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":   res.RunID,
		"built_at": res.BuiltAt.Format(time.RFC3339Nano),
		"columns":  panel.ColumnNames(),
		"total":    total,
		"rows":     rows,
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.panels.invalidate()
	res, ok := s.result(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": res.RunID, "rows": res.Panel.Len()})
}

func (s *Server) handleStatus(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":    res.RunID,
		"trades":    res.Trades.Schema,
		"format":    res.Trades.Format,
		"report":    analytics.Status(res.Panel, s.cfg.PreviewRows),
		"cache":     gin.H{"hits": s.panels.hits.Load(), "builds": s.panels.builds.Load()},
		"pipelines": logger.Snapshot(),
	})
}

func (s *Server) handleKPIs(c *gin.Context) {
	panel, _, ok := s.filteredPanel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analytics.ComputeKPIs(panel))
}

func (s *Server) handleDistribution(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"distribution": analytics.SentimentDistribution(res.Panel)})
}

func (s *Server) handleCorrelation(c *gin.Context) {
	panel, _, ok := s.filteredPanel(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analytics.CorrelationMatrix(panel))
}

func (s *Server) handleClusters(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	k, ok := queryInt(c, "k", s.opts.Clusters, 1, 20)
	if !ok {
		return
	}
	opts := s.opts
	opts.Clusters = k
	clusters, err := analytics.ClusterTraders(res.Panel, opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, clusters)
}

func (s *Server) handleRisk(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	top, ok := queryInt(c, "top", s.opts.TopTraders, 1, 1000)
	if !ok {
		return
	}
	opts := s.opts
	opts.TopTraders = top
	c.JSON(http.StatusOK, gin.H{"traders": analytics.RiskReport(res.Panel, opts)})
}

func (s *Server) handlePnLModel(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	rep, err := analytics.PredictPnL(res.Panel, s.opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleWinModel(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	rep, err := analytics.PredictWinProbability(res.Panel, s.opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleLive(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("symbol", s.live.Symbol)))
	limit, ok := queryInt(c, "limit", s.live.Limit, 1, 1000)
	if !ok {
		return
	}
	if s.fetcher == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "summary": binance.Summarize(symbol, nil), "trades": []models.LiveTrade{}})
		return
	}
	trades := s.fetcher.Fetch(c.Request.Context(), symbol, limit)
	c.JSON(http.StatusOK, gin.H{"enabled": true, "summary": binance.Summarize(symbol, trades), "trades": trades})
}

func (s *Server) handleExport(c *gin.Context) {
	panel, _, ok := s.filteredPanel(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := writer.WritePanelXLSX(&buf, panel); err != nil {
		s.fail(c, fmt.Errorf("export panel: %w", err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="panel.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) handleMetrics(c *gin.Context) {
	snapshot := s.metricStore.snapshot(c.Query("component"))
	payload := make([]gin.H, 0, len(snapshot))
	for _, m := range snapshot {
		payload = append(payload, gin.H{
			"timestamp": m.Timestamp.Format(time.RFC3339Nano),
			"component": m.Component,
			"name":      m.Name,
			"value":     m.Value,
			"type":      m.Type,
			"fields":    m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
}

func (s *Server) handleResources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
}
