package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rmarins/sitesentry/internal/core"
	"github.com/rmarins/sitesentry/internal/runner"
	"github.com/rmarins/sitesentry/internal/storage"
)

// StatusForcer is the scheduler capability the API needs: run a fresh
// pass over one user's targets right now.
type StatusForcer interface {
	ForcePass(ctx context.Context, owner string) ([]*runner.Report, error)
}

type Handler struct {
	store  storage.TargetStore
	forcer StatusForcer
	logger *zap.Logger
}

func NewHandler(store storage.TargetStore, forcer StatusForcer, logger *zap.Logger) *Handler {
	return &Handler{store: store, forcer: forcer, logger: logger}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (h *Handler) ListTargets(c *gin.Context) {
	targets, err := h.store.ListUser(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.logger.Error("list targets failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list targets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

type addTargetRequest struct {
	URL     string `json:"url" binding:"required"`
	ShowSSL bool   `json:"show_ssl"`
	ShowDNS bool   `json:"show_dns"`
}

func (h *Handler) AddTarget(c *gin.Context) {
	var req addTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	normalized, err := core.ValidateURL(c.Request.Context(), nil, req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target := &core.Target{
		URL:     normalized,
		Owner:   c.Param("owner"),
		Display: core.DisplayFlags{ShowSSL: req.ShowSSL, ShowDNS: req.ShowDNS},
	}
	if err := h.store.Add(c.Request.Context(), target); err != nil {
		if errors.Is(err, storage.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "target already exists"})
			return
		}
		h.logger.Error("add target failed", zap.String("url", normalized), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add target"})
		return
	}
	c.JSON(http.StatusCreated, target)
}

func (h *Handler) RemoveTarget(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
		return
	}
	normalized, err := core.NormalizeURL(rawURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.store.Remove(c.Request.Context(), c.Param("owner"), normalized)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
		return
	}
	if err != nil {
		h.logger.Error("remove target failed", zap.String("url", normalized), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove target"})
		return
	}
	c.Status(http.StatusNoContent)
}

type checkStatus struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type targetStatus struct {
	Target *core.Target           `json:"target"`
	Checks map[string]checkStatus `json:"checks"`
	Events []core.Event           `json:"events,omitempty"`
}

// Status runs a forced fresh pass over the user's targets and returns
// their full current state, including cache-fallback annotations.
func (h *Handler) Status(c *gin.Context) {
	reports, err := h.forcer.ForcePass(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.logger.Error("status pass failed", zap.String("owner", c.Param("owner")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to run status pass"})
		return
	}

	statuses := make([]targetStatus, 0, len(reports))
	for _, report := range reports {
		ts := targetStatus{
			Target: report.Target,
			Checks: make(map[string]checkStatus, len(report.Outcomes)),
			Events: report.Events,
		}
		for kind, outcome := range report.Outcomes {
			cs := checkStatus{OK: outcome.OK(), Duration: outcome.Duration.String()}
			if !outcome.OK() {
				cs.Error = outcome.Err.Error()
			}
			ts.Checks[string(kind)] = cs
		}
		statuses = append(statuses, ts)
	}
	c.JSON(http.StatusOK, gin.H{"targets": statuses, "checked_at": time.Now().UTC()})
}
