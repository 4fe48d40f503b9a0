package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/audiolti/internal/feedback"
	"github.com/hitoshi/audiolti/internal/middleware"
	"github.com/hitoshi/audiolti/internal/model"
	"github.com/hitoshi/audiolti/internal/presenter"
	"github.com/hitoshi/audiolti/internal/role"
	"github.com/hitoshi/audiolti/internal/submission"
)

// SubmissionServiceInterface は提出ハンドラーが必要とするサービスインターフェース。
type SubmissionServiceInterface interface {
	SubmitAudio(ctx context.Context, identity *model.IdentityToken, perm role.Permission, res submission.AudioResource) (*submission.SubmissionReceipt, error)
	GradeSubmission(ctx context.Context, identity *model.IdentityToken, perm role.Permission, in submission.GradeInput) (*model.GradeReceipt, error)
	ListSubmissions(ctx context.Context, identity *model.IdentityToken, perm role.Permission, page presenter.Page) (*presenter.SubmissionPage, error)
}

// FeedbackServiceInterface はフィードバック記入に必要なサービスインターフェース。
type FeedbackServiceInterface interface {
	AttachFeedback(ctx context.Context, identity *model.IdentityToken, perm role.Permission, submissionID string, text *string) (*feedback.Receipt, error)
}

// SubmissionHandler は提出・採点・フィードバックのHTTPハンドラー。
type SubmissionHandler struct {
	submissions SubmissionServiceInterface
	feedback    FeedbackServiceInterface
}

// NewSubmissionHandler はSubmissionHandlerを生成する。
func NewSubmissionHandler(submissions SubmissionServiceInterface, feedback FeedbackServiceInterface) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		feedback:    feedback,
	}
}

// feedbackRequest はフィードバック記入リクエストのボディ。
// 空文字列と未指定を区別するためポインタで受ける。
type feedbackRequest struct {
	Feedback *string `json:"feedback"`
}

// SubmitAudio は録音課題を提出する。
// POST /api/submissions
func (h *SubmissionHandler) SubmitAudio(w http.ResponseWriter, r *http.Request) {
	identity, perm, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// ロールの判定をボディの解析より先に行う
	if !perm.IsStudent() {
		handleServiceError(w, r, submission.ErrStudentsOnly)
		return
	}

	var res submission.AudioResource
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, errInvalidBody)
		return
	}

	receipt, err := h.submissions.SubmitAudio(r.Context(), identity, perm, res)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// ListSubmissions は提出物の一覧を取得する。
// GET /api/submissions?page=1&limit=10
func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	identity, perm, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	q := r.URL.Query()
	page := presenter.ParsePage(q.Get("page"), q.Get("limit"))

	result, err := h.submissions.ListSubmissions(r.Context(), identity, perm, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AttachFeedback は提出物にフィードバックを記入する。
// POST /api/submissions/{id}/feedback
func (h *SubmissionHandler) AttachFeedback(w http.ResponseWriter, r *http.Request) {
	identity, perm, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if !perm.IsInstructor() {
		handleServiceError(w, r, feedback.ErrInstructorsOnly)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, errInvalidBody)
		return
	}

	receipt, err := h.feedback.AttachFeedback(r.Context(), identity, perm, chi.URLParam(r, "id"), req.Feedback)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// GradeSubmission は講師が点数を送信する。
// POST /api/grades
func (h *SubmissionHandler) GradeSubmission(w http.ResponseWriter, r *http.Request) {
	identity, perm, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if !perm.IsInstructor() {
		handleServiceError(w, r, submission.ErrInstructorsOnly)
		return
	}

	var in submission.GradeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, errInvalidBody)
		return
	}

	receipt, err := h.submissions.GradeSubmission(r.Context(), identity, perm, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}
