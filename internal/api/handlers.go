package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"adaptive-trading-bot/internal/engine"
)

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.engine.Positions()})
}

func (s *Server) handleRegimes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"regimes": s.engine.Status().Regimes})
}

func (s *Server) handleDecisions(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	c.JSON(http.StatusOK, gin.H{"decisions": s.engine.RecentDecisions(limit)})
}

func (s *Server) handleAdjustments(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	c.JSON(http.StatusOK, gin.H{"adjustments": s.engine.RecentAdjustments(limit)})
}

func (s *Server) handlePositionAdjustments(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	ticket, err := strconv.ParseInt(c.Param("ticket"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket"})
		return
	}
	adjustments, err := s.repo.AdjustmentsForTicket(c.Request.Context(), ticket)
	if err != nil {
		s.logger.Error().Err(err).Int64("ticket", ticket).Msg("adjustment query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket, "adjustments": adjustments})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	limit := queryInt(c, "limit", 50)
	trades, err := s.repo.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("trade query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handlePerformance(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	days := queryInt(c, "days", 30)
	since := time.Now().AddDate(0, 0, -days)
	summary, err := s.repo.Performance(c.Request.Context(), since)
	if err != nil {
		s.logger.Error().Err(err).Msg("performance query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Config())
}

// handlePutConfig stages a configuration revision (loop settings, fusion
// weights, sizing); the engine applies it at the next cycle boundary.
func (s *Server) handlePutConfig(c *gin.Context) {
	var update engine.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config payload: " + err.Error()})
		return
	}
	if err := s.engine.ApplyUpdate(&update); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "staged"})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
