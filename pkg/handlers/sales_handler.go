package handlers

import (
	"errors"
	"net/http"

	"perfoptima-api/pkg/models"
	"perfoptima-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// アップロードの上限サイズ
const maxUploadSize = 10 << 20 // 10MB

// SalesHandler 売上データ・予測APIのハンドラ
type SalesHandler struct {
	datasets *services.DatasetService
}

// NewSalesHandler 新しいSalesHandlerを作成
func NewSalesHandler(datasets *services.DatasetService) *SalesHandler {
	return &SalesHandler{datasets: datasets}
}

// Root 稼働確認用のメッセージ
func (h *SalesHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "PerfOptima AI System Ready. Operational."})
}

// SwitchScenario POST /api/scenario/:scenario_type
func (h *SalesHandler) SwitchScenario(c *gin.Context) {
	scenario := models.ScenarioType(c.Param("scenario_type"))
	res, err := h.datasets.SwitchScenario(c.Request.Context(), scenario)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Override POST /api/override
func (h *SalesHandler) Override(c *gin.Context) {
	var input models.ManualOverrideInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondDetail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.datasets.ApplyOverride(c.Request.Context(), input); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User overrides applied successfully."})
}

// History GET /api/history
func (h *SalesHandler) History(c *gin.Context) {
	records, err := h.datasets.History(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// CurrentStatus GET /api/current-status
func (h *SalesHandler) CurrentStatus(c *gin.Context) {
	status, err := h.datasets.Status(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Predict GET /api/predict?model_type=linear|polynomial|polynomial_high
func (h *SalesHandler) Predict(c *gin.Context) {
	modelType := models.ModelType(c.DefaultQuery("model_type", string(models.ModelLinear)))
	res, err := h.datasets.Predict(c.Request.Context(), modelType)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Upload POST /api/upload（multipartの file フィールド）
func (h *SalesHandler) Upload(c *gin.Context) {
	if c.Request.ContentLength > maxUploadSize {
		respondDetail(c, http.StatusRequestEntityTooLarge, "File too large. The maximum upload size is 10MB")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondDetail(c, http.StatusRequestEntityTooLarge, "File too large. The maximum upload size is 10MB")
			return
		}
		respondDetail(c, http.StatusBadRequest, "A CSV or XLSX file is required in the 'file' field")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondDetail(c, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	records, err := services.ParseSalesFile(fileHeader.Filename, file)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	res, err := h.datasets.ImportRecords(c.Request.Context(), records)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// LatestForecast GET /api/forecast/latest
func (h *SalesHandler) LatestForecast(c *gin.Context) {
	snapshot, err := h.datasets.LatestSnapshot(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
