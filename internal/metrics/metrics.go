// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 成績送信の経路。
const (
	GradeModeAuto   = "auto"
	GradeModeManual = "manual"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordSubmission()
	RecordGradeReport(mode string, ok bool, latency time.Duration)
	RecordFeedback()
	RecordRecordingUpload(size int64)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submissions   prometheus.Counter
	gradeReports  *prometheus.CounterVec
	gradeLatency  *prometheus.HistogramVec
	feedback      prometheus.Counter
	uploads       prometheus.Counter
	uploadedBytes prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiolti_submissions_total",
			Help: "保存された提出物の合計数",
		}),
		gradeReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiolti_grade_reports_total",
			Help: "成績サービスへのスコア送信数（経路・結果別）",
		}, []string{"mode", "result"}),
		gradeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audiolti_grade_report_latency_seconds",
			Help:    "スコア送信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		feedback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiolti_feedback_total",
			Help: "記入されたフィードバックの合計数",
		}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiolti_recording_uploads_total",
			Help: "アップロードされた録音ファイルの合計数",
		}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audiolti_recording_upload_bytes_total",
			Help: "アップロードされた録音ファイルの合計バイト数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiolti_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.submissions,
		c.gradeReports,
		c.gradeLatency,
		c.feedback,
		c.uploads,
		c.uploadedBytes,
		c.httpStatus,
	)

	return c
}

// RecordSubmission は提出物の保存を記録する。
func (c *Collector) RecordSubmission() {
	c.submissions.Inc()
}

// RecordGradeReport はスコア送信の結果とレイテンシを記録する。
func (c *Collector) RecordGradeReport(mode string, ok bool, latency time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.gradeReports.WithLabelValues(mode, result).Inc()
	c.gradeLatency.WithLabelValues(mode).Observe(latency.Seconds())
}

// RecordFeedback はフィードバックの記入を記録する。
func (c *Collector) RecordFeedback() {
	c.feedback.Inc()
}

// RecordRecordingUpload は録音ファイルのアップロードを記録する。
func (c *Collector) RecordRecordingUpload(size int64) {
	c.uploads.Inc()
	if size > 0 {
		c.uploadedBytes.Add(float64(size))
	}
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordSubmission() {}

func (Nop) RecordGradeReport(string, bool, time.Duration) {}

func (Nop) RecordFeedback() {}

func (Nop) RecordRecordingUpload(int64) {}

func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
