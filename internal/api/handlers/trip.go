package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tripscore/internal/analysis"
	"github.com/langchou/tripscore/internal/models"
	"github.com/langchou/tripscore/internal/service"
)

// storeBatchRequest 批次上传请求体
type storeBatchRequest struct {
	UserID        string               `json:"user_id" binding:"required"`
	BatchNumber   int                  `json:"batch_number"`
	Deltas        []models.DeltaSample `json:"deltas" binding:"required"`
	OriginalCount int                  `json:"original_deltas_count"`
}

// StoreBatch 上传轨迹批次
// POST /api/trips/:id/batches
func (h *Handler) StoreBatch(c *gin.Context) {
	tripID := c.Param("id")

	var req storeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid batch payload: " + err.Error()})
		return
	}

	result, err := h.ingestService.StoreBatch(c.Request.Context(), &models.TrajectoryBatch{
		TripID:      tripID,
		UserID:      req.UserID,
		BatchNumber: req.BatchNumber,
		Deltas:      req.Deltas,
	})
	if err != nil {
		h.logger.Error("Failed to store batch",
			zap.String("trip_id", tripID),
			zap.Int("batch_number", req.BatchNumber),
			zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// finalizeRequest 行程结束请求体
type finalizeRequest struct {
	UserID         string              `json:"user_id" binding:"required"`
	StartTimestamp string              `json:"start_timestamp"`
	EndTimestamp   string              `json:"end_timestamp"`
	Quality        *models.TripQuality `json:"trip_quality"`
}

// FinalizeTrip 结束行程
// POST /api/trips/:id/finalize
func (h *Handler) FinalizeTrip(c *gin.Context) {
	tripID := c.Param("id")

	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid finalize payload: " + err.Error()})
		return
	}

	trip, err := h.ingestService.FinalizeTrip(c.Request.Context(), &service.FinalizeRequest{
		TripID:         tripID,
		UserID:         req.UserID,
		StartTimestamp: req.StartTimestamp,
		EndTimestamp:   req.EndTimestamp,
		Quality:        req.Quality,
	})
	if err != nil {
		h.logger.Error("Failed to finalize trip",
			zap.String("trip_id", tripID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to finalize trip"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": trip})
}

// GetTripAnalysis 获取单行程分析
// GET /api/trips/:id/analysis
func (h *Handler) GetTripAnalysis(c *gin.Context) {
	tripID := c.Param("id")

	result, cacheState, err := h.analysisService.AnalyzeTrip(c.Request.Context(), tripID)
	if err != nil {
		if errors.Is(err, service.ErrNoTrajectoryData) || errors.Is(err, analysis.ErrInsufficientData) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No trajectory data for trip"})
			return
		}
		if errors.Is(err, analysis.ErrInvalidDistance) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Trip distance is invalid"})
			return
		}
		h.logger.Error("Trip analysis failed",
			zap.String("trip_id", tripID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Trip analysis failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":        result,
		"cache_state": cacheState,
	})
}

// GetTripState 获取行程状态机快照
// GET /api/trips/:id/state
func (h *Handler) GetTripState(c *gin.Context) {
	machine, ok := h.stateManager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip state not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": machine.GetState()})
}
