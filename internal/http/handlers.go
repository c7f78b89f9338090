/* Copyright (c) 2025 the plugin-bt authors
 * SPDX-License-Identifier: MIT */
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ligoj/plugin-bt/internal/config"
	"github.com/ligoj/plugin-bt/internal/domain"
	"github.com/ligoj/plugin-bt/internal/repo"
	"github.com/ligoj/plugin-bt/internal/services"
)

type Handlers struct {
	cfg  config.Config
	log  zerolog.Logger
	svc  *services.Service
	repo *repo.Repository
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc *services.Service, r *repo.Repository) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc, repo: r}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Report(c *gin.Context) {
	computation, err := h.svc.ComputeReport(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, computation)
}

func (h *Handlers) SyncNow(c *gin.Context) {
	// Run in background detached from the HTTP request to avoid context cancellation
	go func() {
		if err := h.svc.Sync(context.Background()); err != nil {
			h.log.Error().Err(err).Msg("manual sync failed")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) LastRun(c *gin.Context) {
	lr, err := h.svc.LastRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no sync run yet"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lr)
}

// SLA definitions

func (h *Handlers) ListSlas(c *gin.Context) {
	slas, err := h.repo.ListSlas(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slas)
}

func (h *Handlers) CreateSla(c *gin.Context) {
	var def domain.SlaDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := services.ValidateSla(def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.repo.CreateSla(c.Request.Context(), def)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handlers) UpdateSla(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	var def domain.SlaDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	def.ID = id
	if err := services.ValidateSla(def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.UpdateSla(c.Request.Context(), def); err != nil {
		h.notFoundOrFail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *Handlers) DeleteSla(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	if err := h.repo.DeleteSla(c.Request.Context(), id); err != nil {
		h.notFoundOrFail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Calendars

func (h *Handlers) ListCalendars(c *gin.Context) {
	calendars, err := h.repo.ListCalendars(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, calendars)
}

func (h *Handlers) CreateCalendar(c *gin.Context) {
	var in struct {
		Name      string `json:"name" binding:"required"`
		AsDefault bool   `json:"asDefault"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.repo.CreateCalendar(c.Request.Context(), in.Name, in.AsDefault)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handlers) SetDefaultCalendar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	if err := h.repo.SetDefaultCalendar(c.Request.Context(), id); err != nil {
		h.notFoundOrFail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// Holidays

func (h *Handlers) ListHolidays(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	holidays, err := h.repo.ListHolidays(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, holidays)
}

func (h *Handlers) AddHoliday(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	var in struct {
		Name string `json:"name"`
		Date string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.ParseInLocation("2006-01-02", in.Date, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	hid, err := h.repo.AddHoliday(c.Request.Context(), id, in.Name, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": hid})
}

func (h *Handlers) DeleteHoliday(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	if err := h.repo.DeleteHoliday(c.Request.Context(), id); err != nil {
		h.notFoundOrFail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Business hours

func (h *Handlers) ListRanges(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	ranges, err := h.repo.ListRanges(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ranges)
}

func (h *Handlers) AddRange(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	var in domain.BusinessHourRange
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	existing, err := h.repo.ListRanges(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := services.ValidateRange(existing, in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rid, err := h.repo.AddRange(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": rid})
}

func (h *Handlers) UpdateRange(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	rid, ok := pathID(c, "rangeId")
	if !ok { return }
	var in domain.BusinessHourRange
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.ID = rid
	existing, err := h.repo.ListRanges(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := services.ValidateRange(existing, in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.UpdateRange(c.Request.Context(), id, in); err != nil {
		h.notFoundOrFail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": rid})
}

func (h *Handlers) DeleteRange(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok { return }
	rid, ok := pathID(c, "rangeId")
	if !ok { return }
	if err := h.svc.DeleteRange(c.Request.Context(), id, rid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) fail(c *gin.Context, err error) {
	h.log.Error().Err(err).Str("p", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *Handlers) notFoundOrFail(c *gin.Context, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	h.fail(c, err)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
