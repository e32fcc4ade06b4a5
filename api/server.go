// Package api serves the persisted catalog and run history over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pevans/mallfed/catalog"
	"github.com/pevans/mallfed/history"
	"github.com/pevans/mallfed/mall"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

var (
	errProductNotFound = errors.New("product not found")
	errNoHistory       = errors.New("run history is not configured")
)

// Server represents the read-only catalog API. The catalog file is read on
// every request so that commits by the collector are picked up without a
// restart.
type Server struct {
	catalogPath string
	registry    *mall.Registry
	history     *history.Store
}

// NewServer creates an API server. registry and hist may be nil; mall
// listings then fall back to what the catalog contains and run endpoints
// answer 503.
func NewServer(catalogPath string, registry *mall.Registry, hist *history.Store) *Server {
	return &Server{
		catalogPath: catalogPath,
		registry:    registry,
		history:     hist,
	}
}

// SetupRouter configures the Gin router with all catalog API routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/products", s.HandleListProducts)
	api.GET("/products/:id", s.HandleGetProduct)
	api.GET("/malls", s.HandleListMalls)
	api.GET("/malls/:id/runs", s.HandleListMallRuns)
	api.GET("/stats", s.HandleStats)

	return router
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(c *gin.Context, err error) {
	var ioErr *catalog.IOError
	switch {
	case errors.Is(err, errProductNotFound), errors.Is(err, mall.ErrUnknownMall):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, errNoHistory):
		c.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", err.Error()))
	case errors.As(err, &ioErr):
		slog.Error("failed to read catalog", "path", s.catalogPath, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse("catalog_unavailable", "Failed to read catalog"))
	default:
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// ListProductsResponse represents the response for GET /api/v1/products.
type ListProductsResponse struct {
	Products []catalog.Product `json:"products"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// HandleListProducts handles GET /api/v1/products.
func (s *Server) HandleListProducts(c *gin.Context) {
	filter := catalog.Filter{
		MallID:   c.Query("mall"),
		Region:   c.Query("region"),
		Category: c.Query("category"),
		Query:    strings.TrimSpace(c.Query("q")),
	}

	var err error
	if filter.MinPrice, err = queryInt64(c, "min_price"); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", err.Error()))
		return
	}
	if filter.MaxPrice, err = queryInt64(c, "max_price"); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", err.Error()))
		return
	}
	limit, offset, err := pagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", err.Error()))
		return
	}

	products, err := catalog.ReadFile(s.catalogPath)
	if err != nil {
		s.handleError(c, err)
		return
	}

	matched := filter.Apply(products)
	total := len(matched)
	start := min(offset, total)
	end := min(start+limit, total)

	c.JSON(http.StatusOK, ListProductsResponse{
		Products: matched[start:end],
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// HandleGetProduct handles GET /api/v1/products/{id}.
func (s *Server) HandleGetProduct(c *gin.Context) {
	id := c.Param("id")

	products, err := catalog.ReadFile(s.catalogPath)
	if err != nil {
		s.handleError(c, err)
		return
	}

	for _, p := range products {
		if p.ID == id {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	s.handleError(c, errProductNotFound)
}

// MallInfo is one entry of GET /api/v1/malls.
type MallInfo struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Region   string              `json:"region"`
	BaseURL  string              `json:"baseUrl,omitempty"`
	Platform string              `json:"platform,omitempty"`
	Disabled bool                `json:"disabled,omitempty"`
	Products int                 `json:"products"`
	Status   *history.MallStatus `json:"status,omitempty"`
}

// ListMallsResponse represents the response for GET /api/v1/malls.
type ListMallsResponse struct {
	Malls []MallInfo `json:"malls"`
	Total int        `json:"total"`
}

// HandleListMalls handles GET /api/v1/malls. Malls come from the registry
// when one is configured, otherwise from the catalog itself.
func (s *Server) HandleListMalls(c *gin.Context) {
	products, err := catalog.ReadFile(s.catalogPath)
	if err != nil {
		s.handleError(c, err)
		return
	}

	counts := map[string]int{}
	var order []string
	names := map[string]catalog.Product{}
	for _, p := range products {
		if _, ok := names[p.MallID]; !ok {
			names[p.MallID] = p
			order = append(order, p.MallID)
		}
		counts[p.MallID]++
	}

	var malls []MallInfo
	if s.registry != nil {
		for _, d := range s.registry.Malls {
			malls = append(malls, MallInfo{
				ID:       d.ID,
				Name:     d.Name,
				Region:   d.Region,
				BaseURL:  d.BaseURL,
				Platform: d.WithDefaults().Platform,
				Disabled: d.Disabled,
				Products: counts[d.ID],
			})
		}
	} else {
		for _, id := range order {
			p := names[id]
			malls = append(malls, MallInfo{ID: id, Name: p.MallName, Region: p.Region, Products: counts[id]})
		}
	}

	if s.history != nil {
		statuses, err := s.history.MallStatuses()
		if err != nil {
			s.handleError(c, err)
			return
		}
		byID := make(map[string]history.MallStatus, len(statuses))
		for _, st := range statuses {
			byID[st.MallID] = st
		}
		for i := range malls {
			if st, ok := byID[malls[i].ID]; ok {
				malls[i].Status = &st
			}
		}
	}

	if malls == nil {
		malls = []MallInfo{}
	}
	c.JSON(http.StatusOK, ListMallsResponse{Malls: malls, Total: len(malls)})
}

// ListMallRunsResponse represents the response for GET
// /api/v1/malls/{id}/runs.
type ListMallRunsResponse struct {
	MallID string            `json:"mallId"`
	Runs   []history.MallRun `json:"runs"`
}

// HandleListMallRuns handles GET /api/v1/malls/{id}/runs.
func (s *Server) HandleListMallRuns(c *gin.Context) {
	if s.history == nil {
		s.handleError(c, errNoHistory)
		return
	}

	mallID := c.Param("id")
	if s.registry != nil {
		if _, err := s.registry.Get(mallID); err != nil {
			s.handleError(c, err)
			return
		}
	}

	limit, _, err := pagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid_parameter", err.Error()))
		return
	}

	runs, err := s.history.ListMallRuns(mallID, limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if runs == nil {
		runs = []history.MallRun{}
	}

	c.JSON(http.StatusOK, ListMallRunsResponse{MallID: mallID, Runs: runs})
}

// StatsResponse represents the response for GET /api/v1/stats.
type StatsResponse struct {
	catalog.Stats
	LastRun *history.Run `json:"lastRun,omitempty"`
}

// HandleStats handles GET /api/v1/stats.
func (s *Server) HandleStats(c *gin.Context) {
	products, err := catalog.ReadFile(s.catalogPath)
	if err != nil {
		s.handleError(c, err)
		return
	}

	stats := StatsResponse{Stats: catalog.Summarize(products)}

	if s.history != nil {
		runs, err := s.history.ListRuns(history.RunFilter{Limit: 1})
		if err != nil {
			s.handleError(c, err)
			return
		}
		if len(runs) > 0 {
			stats.LastRun = &runs[0]
		}
	}

	c.JSON(http.StatusOK, stats)
}

// pagination reads limit and offset. limit defaults to 50 and is capped at
// 500.
func pagination(c *gin.Context) (int, int, error) {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(n, maxLimit)
	}

	offset := 0
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}

func queryInt64(c *gin.Context, name string) (int64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}
