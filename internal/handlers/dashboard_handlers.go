package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const defaultLowStock = 5

// GetDashboardStats returns KPI data for the admin dashboard
// GET /api/admin/dashboard-stats?lowStock=5
func (h *Handlers) GetDashboardStats(c *gin.Context) {
	lowStock, err := strconv.Atoi(c.DefaultQuery("lowStock", strconv.Itoa(defaultLowStock)))
	if err != nil || lowStock < 1 {
		lowStock = defaultLowStock
	}

	stats, err := h.Stats.Dashboard(c.Request.Context(), lowStock)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
