// Package feedback は講師による提出物へのフィードバック記入を提供する。
package feedback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/audiolti/internal/metrics"
	"github.com/hitoshi/audiolti/internal/model"
	"github.com/hitoshi/audiolti/internal/repository"
	"github.com/hitoshi/audiolti/internal/role"
	"github.com/hitoshi/audiolti/internal/security"
)

// Receipt はフィードバック記入の結果。
type Receipt struct {
	SubmissionID string    `json:"submissionId"`
	Feedback     string    `json:"feedback"`
	FeedbackBy   string    `json:"feedbackBy"`
	FeedbackAt   time.Time `json:"feedbackAt"`
}

// ErrInstructorsOnly は講師以外がフィードバックを記入しようとした場合のエラー。
var ErrInstructorsOnly = model.NewForbiddenError("only instructors may add feedback")

// Service はフィードバックのサービス層。
type Service struct {
	store     repository.SubmissionRepository
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	store repository.SubmissionRepository,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// AttachFeedback は提出物にフィードバックを記入する。
// 空文字列は有効な値として扱う。同じ提出物への再記入は後勝ちになる。
func (s *Service) AttachFeedback(ctx context.Context, identity *model.IdentityToken, perm role.Permission, submissionID string, text *string) (*Receipt, error) {
	if !perm.IsInstructor() {
		return nil, ErrInstructorsOnly
	}
	if submissionID == "" || text == nil {
		return nil, model.NewValidationError("missing submission id or feedback")
	}
	if identity == nil {
		return nil, model.NewUnauthorizedError()
	}

	feedback := s.sanitizer.Sanitize(*text)
	at := s.now().UTC()

	err := s.store.UpdateFeedback(context.WithoutCancel(ctx), submissionID, feedback, identity.Subject, at)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewSubmissionNotFoundError(submissionID)
	}
	if err != nil {
		s.logger.Error("フィードバックの保存に失敗しました",
			slog.String("submission_id", submissionID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistenceError("update feedback", err)
	}
	s.metrics.RecordFeedback()

	s.logger.Info("フィードバックを記入しました",
		slog.String("submission_id", submissionID),
		slog.String("feedback_by", identity.Subject),
	)

	return &Receipt{
		SubmissionID: submissionID,
		Feedback:     feedback,
		FeedbackBy:   identity.Subject,
		FeedbackAt:   at,
	}, nil
}
