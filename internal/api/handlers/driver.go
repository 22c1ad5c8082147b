package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tripscore/internal/repository"
	"github.com/langchou/tripscore/internal/service"
)

// GetDriverAnalysis 司机级聚合分析
// GET /api/drivers/:id/analysis
// :id 接受用户 ID 或邮箱
func (h *Handler) GetDriverAnalysis(c *gin.Context) {
	identifier := c.Param("id")

	report, err := h.analysisService.AnalyzeDriver(c.Request.Context(), identifier)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Driver not found"})
			return
		}
		if errors.Is(err, service.ErrNoTrajectoryData) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No trips for driver"})
			return
		}
		h.logger.Error("Driver analysis failed",
			zap.String("identifier", identifier),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Driver analysis failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
