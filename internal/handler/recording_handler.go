package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hitoshi/audiolti/internal/middleware"
	"github.com/hitoshi/audiolti/internal/model"
	"github.com/hitoshi/audiolti/internal/presenter"
	"github.com/hitoshi/audiolti/internal/recording"
	"github.com/hitoshi/audiolti/internal/role"
)

// recordingFormField はアップロードフォームのファイルフィールド名。
const recordingFormField = "file"

// multipartOverhead はファイル以外のマルチパート部分に許容するバイト数。
const multipartOverhead = 1 << 20

// RecordingServiceInterface は録音ハンドラーが必要とするサービスインターフェース。
type RecordingServiceInterface interface {
	Upload(ctx context.Context, identity *model.IdentityToken, f recording.File) (*recording.UploadReceipt, error)
	List(ctx context.Context, identity *model.IdentityToken, perm role.Permission, page presenter.Page) (*presenter.RecordingPage, error)
	MaxBytes() int64
}

// RecordingHandler は録音ファイルのHTTPハンドラー。
type RecordingHandler struct {
	service RecordingServiceInterface
}

// NewRecordingHandler はRecordingHandlerを生成する。
func NewRecordingHandler(service RecordingServiceInterface) *RecordingHandler {
	return &RecordingHandler{service: service}
}

// Upload は録音ファイルをアップロードする。
// POST /api/recordings (multipart/form-data, field: file)
func (h *RecordingHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, _, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	maxBytes := h.service.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, header, err := r.FormFile(recordingFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewValidationError(fmt.Sprintf("file too large: max %d bytes", maxBytes)))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("missing file"))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	receipt, err := h.service.Upload(r.Context(), identity, recording.File{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// List は録音一覧をユーザーごとに取得する。
// GET /api/recordings?page=1&limit=10
func (h *RecordingHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, perm, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	q := r.URL.Query()
	page := presenter.ParsePage(q.Get("page"), q.Get("limit"))

	result, err := h.service.List(r.Context(), identity, perm, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
