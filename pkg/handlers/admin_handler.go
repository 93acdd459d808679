package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"

	config "perfoptima-api/configs"
	"perfoptima-api/pkg/scheduler"
	"perfoptima-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// Maintenance はサーバーがメンテナンスモードかどうかを保持します。
type Maintenance struct {
	enabled atomic.Bool
}

// Enabled メンテナンス中かどうか
func (m *Maintenance) Enabled() bool {
	return m.enabled.Load()
}

// Middleware メンテナンス中は管理API以外の /api を503で止める
func (m *Maintenance) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if m.Enabled() && strings.HasPrefix(path, "/api/") && !strings.HasPrefix(path, "/api/admin") {
			respondDetail(c, http.StatusServiceUnavailable, "Server is in maintenance mode")
			return
		}
		c.Next()
	}
}

// HealthChecker DBなどの疎通確認
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// JobStatusProvider 定期ジョブの実行状況
type JobStatusProvider interface {
	Status() []scheduler.JobStatus
}

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	cfg         *config.Config
	maintenance *Maintenance
	datasets    *services.DatasetService
	db          HealthChecker
	jobs        JobStatusProvider
}

// NewAdminHandler は新しいAdminHandlerを生成します。dbとjobsはnil可。
func NewAdminHandler(cfg *config.Config, maintenance *Maintenance, datasets *services.DatasetService, db HealthChecker, jobs JobStatusProvider) *AdminHandler {
	return &AdminHandler{
		cfg:         cfg,
		maintenance: maintenance,
		datasets:    datasets,
		db:          db,
		jobs:        jobs,
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// authorize 認証情報を検証し、失敗時はレスポンスを返してfalse
func (h *AdminHandler) authorize(c *gin.Context) bool {
	if !h.cfg.AdminEnabled() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin credentials are not configured"})
		return false
	}

	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(input.Username), []byte(h.cfg.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(input.Password), []byte(h.cfg.AdminPassword)) == 1
	if !userOK || !passOK {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return false
	}
	return true
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.enabled.Store(true)
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.enabled.Store(false)
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped"})
}

// ResetDataset はデータセットをgrowthシナリオ、目標値を既定値に戻します。
func (h *AdminHandler) ResetDataset(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	res, err := h.datasets.Reset(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset dataset"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	status := gin.H{"isMaintenanceMode": h.maintenance.Enabled()}

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			status["database"] = gin.H{"status": "error", "error": err.Error()}
		} else {
			status["database"] = gin.H{"status": "ok"}
		}
	}
	if scenario, err := h.datasets.CurrentScenario(c.Request.Context()); err == nil {
		status["currentScenario"] = scenario
	}
	if h.jobs != nil {
		status["jobs"] = h.jobs.Status()
	}
	c.JSON(http.StatusOK, status)
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	if h.maintenance.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
