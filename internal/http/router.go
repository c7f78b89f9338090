/* Copyright (c) 2025 the plugin-bt authors
 * SPDX-License-Identifier: MIT */
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ligoj/plugin-bt/internal/config"
	"github.com/ligoj/plugin-bt/internal/repo"
	"github.com/ligoj/plugin-bt/internal/services"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc *services.Service, r *repo.Repository) *gin.Engine {
	if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(func(c *gin.Context) {
		c.Next()
		log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
	})

	h := NewHandlers(cfg, log, svc, r)

	e.GET("/healthz", h.Healthz)
	e.GET("/report", h.Report)
	e.POST("/admin/sync", h.SyncNow)
	e.GET("/admin/last-run", h.LastRun)

	e.GET("/sla", h.ListSlas)
	e.POST("/sla", h.CreateSla)
	e.PUT("/sla/:id", h.UpdateSla)
	e.DELETE("/sla/:id", h.DeleteSla)

	e.GET("/calendar", h.ListCalendars)
	e.POST("/calendar", h.CreateCalendar)
	e.PUT("/calendar/:id/default", h.SetDefaultCalendar)
	e.GET("/calendar/:id/holiday", h.ListHolidays)
	e.POST("/calendar/:id/holiday", h.AddHoliday)
	e.DELETE("/holiday/:id", h.DeleteHoliday)
	e.GET("/calendar/:id/business-hours", h.ListRanges)
	e.POST("/calendar/:id/business-hours", h.AddRange)
	e.PUT("/calendar/:id/business-hours/:rangeId", h.UpdateRange)
	e.DELETE("/calendar/:id/business-hours/:rangeId", h.DeleteRange)

	return e
}
