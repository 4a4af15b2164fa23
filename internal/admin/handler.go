// Package admin exposes the operator HTTP API: cache status, on-demand
// reloads and ad-hoc lookups against the published engines.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ratingcore/internal/cache"
	"ratingcore/internal/constants"
	"ratingcore/internal/logger"
	"ratingcore/internal/reload"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/match"
	"ratingcore/pkg/metrics"
)

type Handler struct {
	registry *cache.Registry
	reloader reload.CacheReloader
	logger   logger.Logger
}

func NewHandler(registry *cache.Registry, reloader reload.CacheReloader, log logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		reloader: reloader,
		logger:   log,
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		caches := v1.Group("/caches")
		{
			caches.GET("", h.ListCaches)
			caches.POST("/reload", h.ReloadCaches)
		}

		lookup := v1.Group("/lookup")
		{
			lookup.GET("/prefix", h.LookupPrefix)
			lookup.GET("/validity/:mode", h.LookupValidity)
		}
	}
}

// ListCaches godoc
// @Summary      List named caches
// @Description  Get kind, source and published snapshot of every configured cache
// @Tags         caches
// @Produce      json
// @Success      200  {array}   cache.Stats
// @Router       /caches [get]
func (h *Handler) ListCaches(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats())
}

// ReloadCaches godoc
// @Summary      Reload caches
// @Description  Rebuild the named caches, or all caches when none are given. A failed rebuild keeps the previous snapshot.
// @Tags         caches
// @Accept       json
// @Produce      json
// @Param        request  body      ReloadRequest  false  "Caches to reload"
// @Success      200      {object}  ReloadResponse
// @Failure      400      {object}  map[string]interface{}
// @Failure      404      {object}  map[string]interface{}
// @Failure      503      {object}  ReloadResponse
// @Router       /caches/reload [post]
func (h *Handler) ReloadCaches(c *gin.Context) {
	var req ReloadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
			return
		}
	}

	outcomes, err := h.reloader.Reload(c.Request.Context(), req.Caches...)
	if err != nil && outcomes == nil {
		h.HandleError(c, err)
		return
	}

	resp := ReloadResponse{Outcomes: outcomes}
	status := http.StatusOK
	if err != nil {
		h.logger.WarnwCtx(c.Request.Context(), "Cache reload requested over admin API failed", "error", err)
		resp.Error = err.Error()
		status = errors.ToHTTPStatus(err)
	}
	if resp.Outcomes == nil {
		resp.Outcomes = []reload.Outcome{}
	}
	c.JSON(status, resp)
}

// LookupPrefix godoc
// @Summary      Prefix lookup
// @Description  Resolve the longest-prefix match for one key per field
// @Tags         lookup
// @Produce      json
// @Param        cache  query     string    true  "Prefix cache name"
// @Param        key    query     []string  true  "Key per field, in field order"  collectionFormat(multi)
// @Success      200    {object}  PrefixLookupResponse
// @Failure      400    {object}  map[string]interface{}
// @Failure      404    {object}  map[string]interface{}
// @Failure      503    {object}  map[string]interface{}
// @Router       /lookup/prefix [get]
func (h *Handler) LookupPrefix(c *gin.Context) {
	name := c.Query("cache")
	keys := c.QueryArray("key")

	holder, err := h.registry.Prefix(name)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	snap := holder.Load()
	if snap == nil {
		h.HandleError(c, errors.ErrCacheNotLoaded.WithDetail("cache", name))
		return
	}
	if len(keys) != snap.Value.Fields() {
		h.HandleError(c, errors.ErrValidation.
			WithDetail("message", "key count does not match cache fields").
			WithDetail("fields", snap.Value.Fields()).
			WithDetail("keys", len(keys)))
		return
	}

	res := snap.Value.Lookup(keys...)
	metrics.IncAdminLookup(constants.CacheKindPrefix, res.OK())

	c.JSON(http.StatusOK, PrefixLookupResponse{
		Cache:         name,
		Generation:    snap.Generation,
		Keys:          keys,
		Result:        res.Strings(match.NoMatch),
		WithChildData: res.WithChildData(match.NoMatch),
		Valid:         res.OK(),
	})
}

// LookupValidity godoc
// @Summary      Validity lookup
// @Description  Find the segments of (group, resource) effective at a timestamp. Mode first and all use bounded ranges, from uses start dates only.
// @Tags         lookup
// @Produce      json
// @Param        mode      path      string  true  "Lookup mode"  Enums(first, all, from)
// @Param        cache     query     string  true  "Validity cache name"
// @Param        group     query     string  true  "Group, for example a rate plan"
// @Param        resource  query     string  true  "Resource id, for example a zone"
// @Param        at        query     string  true  "RFC 3339 timestamp"
// @Success      200       {object}  ValidityLookupResponse
// @Failure      400       {object}  map[string]interface{}
// @Failure      404       {object}  map[string]interface{}
// @Failure      503       {object}  map[string]interface{}
// @Router       /lookup/validity/{mode} [get]
func (h *Handler) LookupValidity(c *gin.Context) {
	mode := c.Param("mode")
	name := c.Query("cache")

	switch mode {
	case constants.ModeFirst, constants.ModeAll, constants.ModeFrom:
	default:
		h.HandleError(c, errors.ErrValidation.WithDetail("message", "mode must be first, all or from"))
		return
	}

	at, err := time.Parse(time.RFC3339Nano, c.Query("at"))
	if err != nil {
		h.HandleError(c, errors.ErrValidation.
			WithCause(err).
			WithDetail("message", "at must be an RFC 3339 timestamp"))
		return
	}

	holder, err := h.registry.Validity(name)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	snap := holder.Load()
	if snap == nil {
		h.HandleError(c, errors.ErrCacheNotLoaded.WithDetail("cache", name))
		return
	}

	group, resource := c.Query("group"), c.Query("resource")
	resp := ValidityLookupResponse{
		Cache:      name,
		Generation: snap.Generation,
		Mode:       mode,
		Group:      group,
		Resource:   resource,
		At:         at,
	}

	x := snap.Value
	switch mode {
	case constants.ModeAll:
		all := x.AllMatches(group, resource, at)
		resp.Result = match.AllStrings(all)
		resp.WithChildData = match.AllWithChildData(all)
		resp.Valid = len(all) > 0
	case constants.ModeFrom:
		res := x.FromMatch(group, resource, at)
		resp.Result = res.Strings(match.NoValidityMatch)
		resp.WithChildData = [][]string{res.WithChildData(match.NoValidityMatch)}
		resp.Valid = res.OK()
	default:
		res := x.FirstMatch(group, resource, at)
		resp.Result = res.Strings(match.NoValidityMatch)
		resp.WithChildData = [][]string{res.WithChildData(match.NoValidityMatch)}
		resp.Valid = res.OK()
	}

	metrics.IncAdminLookup(constants.CacheKindValidity, resp.Valid)
	c.JSON(http.StatusOK, resp)
}
