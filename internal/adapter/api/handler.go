// Package api exposes mounted picker widgets over HTTP. Each session is one
// widget; the routes forward user input to it and return its state.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/location-picker/internal/adapter/geolocation"
	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/picker"
	"github.com/couchcryptid/location-picker/internal/session"
)

// Handler serves the picker API.
type Handler struct {
	sessions  *session.Registry
	resolver  *domain.Resolver
	suggester domain.Suggester
	widget    picker.Config
	logger    *slog.Logger
}

// NewHandler creates the API handler. suggester may be nil.
func NewHandler(sessions *session.Registry, resolver *domain.Resolver, suggester domain.Suggester, widget picker.Config, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		resolver:  resolver,
		suggester: suggester,
		widget:    widget,
		logger:    logger,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	v1.GET("/map", h.MapConfig)
	v1.GET("/geocode/reverse", h.ReverseGeocode)
	v1.GET("/geocode/search", h.SearchAddress)

	pickers := v1.Group("/pickers")
	pickers.POST("", h.CreatePicker)
	pickers.GET("/:id", h.GetPicker)
	pickers.DELETE("/:id", h.DeletePicker)
	pickers.POST("/:id/search", h.SearchInput)
	pickers.POST("/:id/search/submit", h.SearchSubmit)
	pickers.POST("/:id/search/keydown", h.SearchKeyDown)
	pickers.POST("/:id/search/select", h.SearchSelect)
	pickers.POST("/:id/click", h.Click)
	pickers.POST("/:id/locate", h.Locate)
}

// NewRouter builds a gin engine with the API, request logging and the
// per-IP rate limiter.
func NewRouter(h *Handler, limiter *IPRateLimiter, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	if limiter != nil {
		r.Use(limiter.RateLimit())
	}
	h.Register(r)
	return r
}

// MapConfig handles GET /api/v1/map.
func (h *Handler) MapConfig(c *gin.Context) {
	c.JSON(http.StatusOK, mapResponse{
		Tiles:   h.widget.Tiles,
		Center:  h.widget.Default.Coordinates(),
		Zoom:    h.widget.Zoom,
		Default: h.widget.Default,
	})
}

// ReverseGeocode handles GET /api/v1/geocode/reverse?lat=&lng=. It always
// answers with an address, falling back to the coordinate string.
func (h *Handler) ReverseGeocode(c *gin.Context) {
	var q reverseQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query 'lat' and 'lng' are required and must be in range"})
		return
	}
	lat, lng := *q.Lat, *q.Lng
	c.JSON(http.StatusOK, addressResponse{
		Lat:     lat,
		Lng:     lng,
		Address: h.resolver.Resolve(c.Request.Context(), lat, lng),
	})
}

// SearchAddress handles GET /api/v1/geocode/search?q=...
func (h *Handler) SearchAddress(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query 'q' is required (min 3 chars)"})
		return
	}
	if h.suggester == nil {
		c.JSON(http.StatusOK, []domain.Candidate{})
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = h.widget.Search.MaxSuggestions
	}
	results, err := h.suggester.Suggest(c.Request.Context(), q.Query, limit)
	if err != nil {
		h.logger.Warn("address search failed", "error", err)
		c.JSON(http.StatusBadGateway, errorResponse{Error: "address lookup service unavailable"})
		return
	}
	if results == nil {
		results = []domain.Candidate{}
	}
	c.JSON(http.StatusOK, results)
}

// CreatePicker handles POST /api/v1/pickers.
func (h *Handler) CreatePicker(c *gin.Context) {
	s, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stateOf(s))
}

// GetPicker handles GET /api/v1/pickers/:id.
func (h *Handler) GetPicker(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, stateOf(s))
}

// DeletePicker handles DELETE /api/v1/pickers/:id.
func (h *Handler) DeletePicker(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SearchInput handles POST /api/v1/pickers/:id/search. Suggestions arrive
// after the debounce; clients poll the picker state for them.
func (h *Handler) SearchInput(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req searchInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	if err := s.Widget().Search().Input(req.Text); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, stateOf(s))
}

// SearchSubmit handles POST /api/v1/pickers/:id/search/submit.
func (h *Handler) SearchSubmit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	ev := s.Widget().Search().Submit()
	c.JSON(http.StatusOK, formEventResponse{Event: ev, State: stateOf(s)})
}

// SearchKeyDown handles POST /api/v1/pickers/:id/search/keydown?key=Enter.
func (h *Handler) SearchKeyDown(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query 'key' is required"})
		return
	}
	ev := s.Widget().Search().KeyDown(key)
	c.JSON(http.StatusOK, formEventResponse{Event: ev, State: stateOf(s)})
}

// SearchSelect handles POST /api/v1/pickers/:id/search/select.
func (h *Handler) SearchSelect(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req searchSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	if err := s.Widget().Search().Select(*req.Index); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stateOf(s))
}

// Click handles POST /api/v1/pickers/:id/click. The address is resolved
// asynchronously; the returned state shows the selection before the click
// was confirmed.
func (h *Handler) Click(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req clickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}
	if err := s.Widget().Click(*req.Lat, *req.Lng); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, stateOf(s))
}

// Locate handles POST /api/v1/pickers/:id/locate. The optional body is the
// device's own answer to the position request.
func (h *Handler) Locate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req locateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
			return
		}
	}

	err := s.Widget().Locate().Activate(withReport(c.Request.Context(), req))
	var gerr *domain.GeolocationError
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, stateOf(s))
	case errors.As(err, &gerr):
		// Already surfaced to the user as a notification.
		c.JSON(http.StatusOK, stateOf(s))
	default:
		h.writeError(c, err)
	}
}

func withReport(ctx context.Context, req locateRequest) context.Context {
	switch {
	case req.Position != nil:
		return geolocation.WithReport(ctx, geolocation.Report{Position: &domain.Position{
			Lat:      req.Position.Lat,
			Lng:      req.Position.Lng,
			Accuracy: req.Position.Accuracy,
		}})
	case req.Error != "":
		return geolocation.WithReport(ctx, geolocation.Report{Kind: domain.ParseGeolocationErrorKind(req.Error)})
	default:
		return ctx
	}
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return s, true
}

// writeError maps session and widget errors to HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, picker.ErrLocateBusy):
		status = http.StatusConflict
	case errors.Is(err, picker.ErrNoSuchSuggestion):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, picker.ErrNotMounted), errors.Is(err, picker.ErrDetached):
		status = http.StatusGone
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}
