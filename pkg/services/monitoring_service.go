package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader リクエストIDを受け渡すヘッダー
const RequestIDHeader = "X-Request-ID"

// 保持するリクエストログの上限
const maxRequestLogs = 10000

// RequestLog は単一のリクエストログを表します。
type RequestLog struct {
	RequestID    string        `json:"requestId"`
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
}

// MonitoringService はAPIのリクエストを記録し、ダッシュボード用に集計します。
type MonitoringService struct {
	mu       sync.RWMutex
	logs     []RequestLog
	excluded []string
	log      zerolog.Logger
	now      func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
// excludedに一致するパスプレフィックスは集計対象外（ログ出力は行う）。
func NewMonitoringService(log zerolog.Logger, excluded ...string) *MonitoringService {
	return &MonitoringService{
		logs:     make([]RequestLog, 0),
		excluded: excluded,
		log:      log.With().Str("component", "http").Logger(),
		now:      time.Now,
	}
}

// Record はリクエストを記録します。上限を超えた分は古い順に捨てます。
func (s *MonitoringService) Record(entry RequestLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - maxRequestLogs; over > 0 {
		s.logs = append(s.logs[:0:0], s.logs[over:]...)
	}
}

// LoggingMiddleware はリクエストIDを付与し、1リクエスト1行の構造化ログを出力するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		path := c.Request.URL.Path
		status := c.Writer.Status()
		elapsed := s.now().Sub(start)

		event := s.log.Info()
		switch {
		case status >= 500:
			event = s.log.Error()
		case status >= 400:
			event = s.log.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("request")

		for _, prefix := range s.excluded {
			if strings.HasPrefix(path, prefix) {
				return
			}
		}
		s.Record(RequestLog{
			RequestID:    requestID,
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   status,
			ResponseTime: elapsed,
		})
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []HourlyCount     `json:"requestsOverTime"`
	Endpoints        map[string]int    `json:"endpoints"`
	StatusCodes      []StatusCount     `json:"statusCodes"`
	AvgResponseTimes []EndpointLatency `json:"avgResponseTimes"`
	RecentErrors     []RequestLog      `json:"recentErrors"`
}

// HourlyCount 1時間あたりのリクエスト数
type HourlyCount struct {
	Time     string `json:"time"`
	Requests int    `json:"requests"`
}

// StatusCount ステータスコード区分ごとの件数
type StatusCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// EndpointLatency エンドポイントごとの平均応答時間（ミリ秒）
type EndpointLatency struct {
	Endpoint     string `json:"endpoint"`
	ResponseTime int64  `json:"responseTime"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}

	s.mu.RLock()
	now := s.now()
	since := now.Add(-time.Duration(periodHours) * time.Hour)
	filtered := make([]RequestLog, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}
	s.mu.RUnlock()

	// 過去から現在へ向かう時間バケット
	requestsOverTime := make([]HourlyCount, periodHours)
	bucketIndex := make(map[int64]int, periodHours)
	for i := 0; i < periodHours; i++ {
		bucket := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		requestsOverTime[i] = HourlyCount{Time: bucket.Format("15:00")}
		bucketIndex[bucket.Unix()] = i
	}

	endpoints := make(map[string]int)
	statusCodes := []StatusCount{
		{Name: "2xx Success"},
		{Name: "4xx Client Error"},
		{Name: "5xx Server Error"},
	}
	latencySum := make(map[string]time.Duration)
	latencyCount := make(map[string]int)

	for _, entry := range filtered {
		if i, ok := bucketIndex[entry.Timestamp.Truncate(time.Hour).Unix()]; ok {
			requestsOverTime[i].Requests++
		}
		endpoints[entry.Path]++

		switch {
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			statusCodes[0].Value++
		case entry.StatusCode >= 400 && entry.StatusCode < 500:
			statusCodes[1].Value++
		case entry.StatusCode >= 500:
			statusCodes[2].Value++
		}

		latencySum[entry.Path] += entry.ResponseTime
		latencyCount[entry.Path]++
	}

	avgResponseTimes := make([]EndpointLatency, 0, len(latencySum))
	for path, total := range latencySum {
		avgResponseTimes = append(avgResponseTimes, EndpointLatency{
			Endpoint:     path,
			ResponseTime: total.Milliseconds() / int64(latencyCount[path]),
		})
	}
	sort.Slice(avgResponseTimes, func(i, j int) bool {
		return avgResponseTimes[i].Endpoint < avgResponseTimes[j].Endpoint
	})

	// 直近の5xxエラー（新しい順に最大10件）
	recentErrors := make([]RequestLog, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodes,
		AvgResponseTimes: avgResponseTimes,
		RecentErrors:     recentErrors,
	}
}
