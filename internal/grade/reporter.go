// Package grade はLMSの成績表への点数送信を提供する。
package grade

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/audiolti/internal/lti"
	"github.com/hitoshi/audiolti/internal/model"
)

// 新規作成する列の既定値。
const (
	DefaultScoreMaximum = 100
	defaultLineItemName = "Grade"
)

// 進捗ステータス。
const (
	ActivitySubmitted = "Submitted"
	ActivityCompleted = "Completed"
	GradingPending    = "PendingManual"
	GradingFullyDone  = "FullyGraded"
)

// errNoResourceLink は列の検索に必要なリソースリンクIDが無いことを表す。
var errNoResourceLink = errors.New("resource link id is required to resolve the line item")

// ServiceClient はReporterが利用する成績サービスの操作。
type ServiceClient interface {
	GetLineItems(ctx context.Context, identity *model.IdentityToken, resourceLinkID string) ([]lti.LineItem, error)
	CreateLineItem(ctx context.Context, identity *model.IdentityToken, item lti.LineItem) (*lti.LineItem, error)
	SubmitScore(ctx context.Context, identity *model.IdentityToken, lineItemID string, score lti.Score) (*model.GradeReceipt, error)
}

// Request はスコア送信の入力。
// UserIDが空の場合は起動ユーザー自身に送信する。
// ScoreMaximumが0以下の場合はDefaultScoreMaximumを使用する。
type Request struct {
	Score            *float64
	UserID           string
	ScoreMaximum     float64
	ActivityProgress string
	GradingProgress  string
}

// Reporter は列の解決とスコア送信を行う。
type Reporter struct {
	client ServiceClient
	logger *slog.Logger
}

// NewReporter はReporterの新しいインスタンスを生成する。
func NewReporter(client ServiceClient, logger *slog.Logger) *Reporter {
	return &Reporter{
		client: client,
		logger: logger,
	}
}

// SubmitGrade は対象ユーザーのスコアを送信する。
// 起動コンテキストに列が埋め込まれていればそれを使い、無ければリソースリンクの列を検索する。
// 列が1件も無い場合は満点100の列を作成する。
// 失敗は全て*model.GradeReportingErrorとして返す。
func (r *Reporter) SubmitGrade(ctx context.Context, identity *model.IdentityToken, req Request) (*model.GradeReceipt, error) {
	if identity == nil {
		return nil, model.NewGradeReportingError(errors.New("identity is required"))
	}

	userID := req.UserID
	if userID == "" {
		userID = identity.Subject
	}

	lineItemID, err := r.resolveLineItem(ctx, identity)
	if err != nil {
		r.logger.Warn("成績列の解決に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewGradeReportingError(err)
	}

	maximum := req.ScoreMaximum
	if maximum <= 0 {
		maximum = DefaultScoreMaximum
	}

	receipt, err := r.client.SubmitScore(ctx, identity, lineItemID, lti.Score{
		UserID:           userID,
		ScoreGiven:       req.Score,
		ScoreMaximum:     maximum,
		ActivityProgress: req.ActivityProgress,
		GradingProgress:  req.GradingProgress,
	})
	if err != nil {
		r.logger.Warn("スコアの送信に失敗しました",
			slog.String("user_id", userID),
			slog.String("line_item", lineItemID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewGradeReportingError(err)
	}

	r.logger.Info("スコアを送信しました",
		slog.String("user_id", userID),
		slog.String("line_item", lineItemID),
		slog.String("grading_progress", req.GradingProgress),
	)
	return receipt, nil
}

func (r *Reporter) resolveLineItem(ctx context.Context, identity *model.IdentityToken) (string, error) {
	pc := identity.PlatformContext
	if pc != nil && pc.Endpoint != nil && pc.Endpoint.LineItem != "" {
		return pc.Endpoint.LineItem, nil
	}

	resourceLinkID := identity.ResourceLinkID()
	if resourceLinkID == "" {
		return "", errNoResourceLink
	}

	items, err := r.client.GetLineItems(ctx, identity, resourceLinkID)
	if err != nil {
		return "", err
	}
	if len(items) > 0 {
		return items[0].ID, nil
	}

	created, err := r.client.CreateLineItem(ctx, identity, lti.LineItem{
		ScoreMaximum:   DefaultScoreMaximum,
		Label:          defaultLineItemName,
		Tag:            defaultLineItemName,
		ResourceLinkID: resourceLinkID,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}
