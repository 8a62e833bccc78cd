// Package web serves the read-only HTTP API over the archive: search,
// message lookup, raw download, and aggregate stats. It never writes
// to the index or the archive tree.
package web

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nhle/mail-archiver/internal/archive"
	"github.com/nhle/mail-archiver/internal/index"
	"github.com/nhle/mail-archiver/internal/model"
)

// Server exposes the archive over HTTP.
type Server struct {
	index   *index.Store
	archive *archive.Store
	folders []string
	log     *zap.Logger
	engine  *gin.Engine
}

// NewServer builds the HTTP server. folders is the set of known folder
// names, used to re-root legacy paths during download resolution.
// registry may be nil to disable the /metrics endpoint.
func NewServer(
	idx *index.Store,
	arc *archive.Store,
	folders []string,
	registry *prometheus.Registry,
	log *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		index:   idx,
		archive: arc,
		folders: folders,
		log:     log,
		engine:  gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/search", s.handleSearch)
	api.GET("/messages/:id", s.handleMessage)
	api.GET("/messages/:id/download", s.handleDownload)
	api.GET("/stats", s.handleStats)

	if registry != nil {
		s.engine.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		))
	}

	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type searchHit struct {
	ID      int64     `json:"id"`
	Date    time.Time `json:"date"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
}

type searchResponse struct {
	Query    string      `json:"query"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Results  []searchHit `json:"results"`
}

func (s *Server) handleSearch(c *gin.Context) {
	input := c.Query("q")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	sort := c.DefaultQuery("sort", index.SortDateDesc)
	raw := c.Query("raw") == "1"

	query := index.BuildQuery(input, !raw)
	limit, offset := index.Paginate(page, pageSize)

	resp := searchResponse{
		Query:    query,
		Page:     page,
		PageSize: limit,
		Results:  []searchHit{},
	}
	if query == "" {
		c.JSON(http.StatusOK, resp)
		return
	}

	rows, err := s.index.Search(c.Request.Context(), query, limit, offset, sort)
	if err != nil {
		// Raw mode passes user syntax straight to the search engine;
		// a malformed query is the caller's error, not ours.
		if raw {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query syntax"})
			return
		}
		s.serverError(c, "search failed", err)
		return
	}

	total, err := s.index.Count(c.Request.Context(), query)
	if err != nil {
		s.serverError(c, "count failed", err)
		return
	}

	for _, row := range rows {
		resp.Results = append(resp.Results, searchHit{
			ID:      row.RowID,
			Date:    row.Date,
			From:    row.From,
			Subject: row.Subject,
		})
	}
	resp.Total = total
	c.JSON(http.StatusOK, resp)
}

type messageResponse struct {
	ID      int64     `json:"id"`
	Date    time.Time `json:"date"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Path    string    `json:"path"`
}

func (s *Server) lookup(c *gin.Context) (*model.MessageView, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return nil, false
	}

	view, err := s.index.GetByRowID(c.Request.Context(), id)
	if errors.Is(err, index.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return nil, false
	}
	if err != nil {
		s.serverError(c, "message lookup failed", err)
		return nil, false
	}
	return view, true
}

func (s *Server) handleMessage(c *gin.Context) {
	view, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, messageResponse{
		ID:      view.RowID,
		Date:    view.Date,
		From:    view.From,
		Subject: view.Subject,
		Path:    view.Path,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	view, ok := s.lookup(c)
	if !ok {
		return
	}

	// A stored path that resolves outside the archive root, or to a
	// file that no longer exists, is indistinguishable from a missing
	// message as far as the caller is concerned.
	path, ok := archive.Resolve(view.Path, s.archive.Root(), s.folders)
	if !ok {
		s.log.Warn("stored path did not resolve",
			zap.Int64("id", view.RowID),
			zap.String("path", view.Path))
		c.JSON(http.StatusNotFound, gin.H{"error": "message file not found"})
		return
	}

	c.FileAttachment(path, filepath.Base(path))
}

type statsResponse struct {
	Messages      int64               `json:"messages"`
	Bytes         int64               `json:"bytes"`
	UniqueSenders int64               `json:"unique_senders"`
	TopSenders    []model.SenderCount `json:"top_senders"`
	TopDomains    []model.DomainCount `json:"top_domains"`
}

func (s *Server) handleStats(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("top", "10"))
	if n <= 0 || n > 100 {
		n = 10
	}
	ctx := c.Request.Context()

	totals, err := s.index.Totals(ctx)
	if err != nil {
		s.serverError(c, "reading totals failed", err)
		return
	}
	senders, err := s.index.TopSenders(ctx, n)
	if err != nil {
		s.serverError(c, "reading top senders failed", err)
		return
	}
	domains, err := s.index.TopDomains(ctx, n)
	if err != nil {
		s.serverError(c, "reading top domains failed", err)
		return
	}

	if senders == nil {
		senders = []model.SenderCount{}
	}
	if domains == nil {
		domains = []model.DomainCount{}
	}

	c.JSON(http.StatusOK, statsResponse{
		Messages:      totals.Messages,
		Bytes:         totals.Bytes,
		UniqueSenders: totals.UniqueSenders,
		TopSenders:    senders,
		TopDomains:    domains,
	})
}

func (s *Server) serverError(c *gin.Context, msg string, err error) {
	s.log.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
