// Package submission は録音課題の提出と採点のワークフローを提供する。
package submission

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/audiolti/internal/grade"
	"github.com/hitoshi/audiolti/internal/metrics"
	"github.com/hitoshi/audiolti/internal/model"
	"github.com/hitoshi/audiolti/internal/presenter"
	"github.com/hitoshi/audiolti/internal/repository"
	"github.com/hitoshi/audiolti/internal/role"
	"github.com/hitoshi/audiolti/internal/security"
)

// GradeReporter はスコア送信のインターフェース。*grade.Reporterが満たす。
type GradeReporter interface {
	SubmitGrade(ctx context.Context, identity *model.IdentityToken, req grade.Request) (*model.GradeReceipt, error)
}

// AudioResource は学生が提出する録音課題の内容。
// Durationは秒数または "mm:ss" 形式の文字列で受け付ける。
type AudioResource struct {
	Title      string         `json:"title"`
	Artist     string         `json:"artist"`
	Link       string         `json:"link,omitempty"`
	Duration   model.Duration `json:"duration,omitempty"`
	Transcript map[string]any `json:"transcript,omitempty"`
}

// GradeOutcome は提出時の自動スコア通知の結果。
// 成功時は受領内容、失敗時はErrorにメッセージが入る。
type GradeOutcome struct {
	*model.GradeReceipt
	Error string `json:"error,omitempty"`
}

// SubmissionReceipt は提出処理のレスポンス。
type SubmissionReceipt struct {
	SubmissionID          string               `json:"submissionId"`
	Token                 *model.IdentityToken `json:"token"`
	Items                 []model.ResourceItem `json:"items"`
	Resource              AudioResource        `json:"resource"`
	GradeSubmissionResult GradeOutcome         `json:"gradeSubmissionResult"`
}

// GradeInput は講師による採点の入力。UserIDが空の場合は起動ユーザー自身が対象になる。
type GradeInput struct {
	Score  *float64 `json:"grade"`
	UserID string   `json:"userId,omitempty"`
}

// Service は提出・採点・一覧取得のサービス層。
type Service struct {
	store     repository.SubmissionRepository
	reporter  GradeReporter
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	store repository.SubmissionRepository,
	reporter GradeReporter,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		reporter:  reporter,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
	}
}

// ロールによる拒否。ハンドラーもボディの解析前に同じエラーを返す。
var (
	ErrStudentsOnly    = model.NewForbiddenError("only students may submit")
	ErrInstructorsOnly = model.NewForbiddenError("only instructors may grade")
)

// SubmitAudio は学生の録音課題を保存し、成績サービスに提出済みを通知する。
// 権限、コンテキスト、入力の順に検証し、全て通過するまで副作用を起こさない。
// 通知の失敗はレスポンスのGradeSubmissionResultに格下げされ、保存済みの提出物は残る。
func (s *Service) SubmitAudio(ctx context.Context, identity *model.IdentityToken, perm role.Permission, res AudioResource) (*SubmissionReceipt, error) {
	if !perm.IsStudent() {
		return nil, ErrStudentsOnly
	}
	if identity == nil || identity.PlatformContext == nil {
		return nil, model.NewInvalidContextError()
	}

	res.Title = s.sanitizer.Sanitize(res.Title)
	res.Artist = s.sanitizer.Sanitize(res.Artist)
	res.Link = s.sanitizer.Sanitize(res.Link)
	if res.Title == "" || res.Artist == "" {
		return nil, model.NewValidationError("missing title or artist")
	}
	res.Duration = res.Duration.OrDefault()

	items := []model.ResourceItem{buildResourceItem(identity, res)}

	snapshot, err := identity.PlatformContext.Snapshot()
	if err != nil {
		return nil, model.NewPersistenceError("snapshot platform context", err)
	}

	// ここから先はクライアントの切断でロールバックしない
	ctx = context.WithoutCancel(ctx)

	sub := &model.Submission{
		UserID:          identity.Subject,
		Title:           res.Title,
		Artist:          res.Artist,
		Link:            res.Link,
		Duration:        res.Duration,
		PlatformContext: snapshot,
		Items:           items,
	}
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		s.logger.Error("提出物の保存に失敗しました",
			slog.String("user_id", identity.Subject),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistenceError("create submission", err)
	}
	s.metrics.RecordSubmission()

	s.logger.Info("提出物を保存しました",
		slog.String("submission_id", sub.ID),
		slog.String("user_id", sub.UserID),
	)

	outcome := GradeOutcome{}
	start := time.Now()
	receipt, err := s.reporter.SubmitGrade(ctx, identity, grade.Request{
		Score:            nil,
		ActivityProgress: grade.ActivitySubmitted,
		GradingProgress:  grade.GradingPending,
	})
	s.metrics.RecordGradeReport(metrics.GradeModeAuto, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("提出済みの通知に失敗しました",
			slog.String("submission_id", sub.ID),
			slog.String("error", err.Error()),
		)
		outcome.Error = err.Error()
	} else {
		outcome.GradeReceipt = receipt
	}

	return &SubmissionReceipt{
		SubmissionID:          sub.ID,
		Token:                 identity,
		Items:                 items,
		Resource:              res,
		GradeSubmissionResult: outcome,
	}, nil
}

// GradeSubmission は講師が点数を送信する。
// 失敗は握りつぶさず*model.GradeReportingErrorとして返す。
func (s *Service) GradeSubmission(ctx context.Context, identity *model.IdentityToken, perm role.Permission, in GradeInput) (*model.GradeReceipt, error) {
	if !perm.IsInstructor() {
		return nil, ErrInstructorsOnly
	}
	if in.Score == nil {
		return nil, model.NewValidationError("missing grade")
	}
	if identity == nil || identity.PlatformContext == nil {
		return nil, model.NewInvalidContextError()
	}

	start := time.Now()
	receipt, err := s.reporter.SubmitGrade(ctx, identity, grade.Request{
		Score:            in.Score,
		UserID:           in.UserID,
		ActivityProgress: grade.ActivityCompleted,
		GradingProgress:  grade.GradingFullyDone,
	})
	s.metrics.RecordGradeReport(metrics.GradeModeManual, err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListSubmissions は提出物の一覧をページング付きで返す。
// 講師区分は全件、それ以外は自分の提出物のみ。
func (s *Service) ListSubmissions(ctx context.Context, identity *model.IdentityToken, perm role.Permission, page presenter.Page) (*presenter.SubmissionPage, error) {
	if identity == nil {
		return nil, model.NewUnauthorizedError()
	}

	instructor := perm.IsInstructor()
	subs, total, err := s.store.ListSubmissions(ctx, identity.Subject, instructor, page.Limit, page.Offset())
	if err != nil {
		return nil, model.NewPersistenceError("list submissions", err)
	}

	result := presenter.Submissions(subs, total, page, instructor)
	return &result, nil
}

// buildResourceItem はLMSに埋め込み返すディープリンク項目を組み立てる。
func buildResourceItem(identity *model.IdentityToken, res AudioResource) model.ResourceItem {
	transcript := res.Transcript
	if transcript == nil {
		transcript = model.DefaultTranscript()
	}

	return model.ResourceItem{
		Type:  model.ResourceItemType,
		Title: res.Title,
		Text:  res.Title,
		URL:   identity.PlatformContext.TargetLinkURI,
		Custom: model.ResourceCustom{
			Link:           res.Link,
			Artist:         res.Artist,
			AssignmentType: model.AssignmentTypeAudio,
			Duration:       res.Duration,
			Transcript:     transcript,
		},
		UserInfo: model.SubmitterInfo{
			Sub:        identity.Subject,
			GivenName:  identity.UserInfo.GivenName,
			FamilyName: identity.UserInfo.FamilyName,
			Name:       identity.UserInfo.Name,
			Email:      identity.UserInfo.Email,
		},
	}
}
