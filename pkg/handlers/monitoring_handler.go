package handlers

import (
	"net/http"

	"perfoptima-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler はモニタリング関連の操作のハンドラです。
type MonitoringHandler struct {
	Service *services.MonitoringService
}

// NewMonitoringHandler は新しいMonitoringHandlerを生成します。
func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{
		Service: service,
	}
}

// 集計期間（?period=）と時間数の対応
var monitoringPeriods = map[string]int{
	"1h":  1,
	"6h":  6,
	"24h": 24,
	"7d":  24 * 7,
}

// GetLogs は集計されたリクエストログを返します。
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")
	hours, ok := monitoringPeriods[period]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be one of 1h, 6h, 24h, 7d"})
		return
	}
	c.JSON(http.StatusOK, h.Service.GetDashboardData(hours))
}
