package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"perfoptima-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader API認証に使うヘッダー
const APIKeyHeader = "X-API-KEY"

// APIKeyMiddleware X-API-KEYヘッダーを検証するミドルウェア（キー未設定なら認証なし）
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		provided := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// respondDetail FastAPI互換の {"detail": ...} 形式でエラーを返す
func respondDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// respondServiceError サービス層のエラーをHTTPステータスに変換して返す
func respondServiceError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, services.ErrInvalidScenario):
		respondDetail(c, http.StatusBadRequest, "Invalid scenario type")
	case errors.Is(err, services.ErrInvalidOverride),
		errors.Is(err, services.ErrInvalidUpload):
		respondDetail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNoData):
		respondDetail(c, http.StatusNotFound, "No sales data available")
	case errors.Is(err, services.ErrNoSnapshot):
		respondDetail(c, http.StatusNotFound, "No forecast snapshot available yet")
	case errors.Is(err, services.ErrComputation):
		respondDetail(c, http.StatusInternalServerError, err.Error())
	default:
		respondDetail(c, http.StatusInternalServerError, "Internal server error")
	}
}
