// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/audiolti/internal/middleware"
	"github.com/hitoshi/audiolti/internal/model"
)

// errInvalidBody はリクエストボディを解析できない場合のエラー。
var errInvalidBody = model.NewValidationError("invalid request body")

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())

	var perr *model.PersistenceError
	if errors.As(err, &perr) {
		// 詳細はログのみ
		slog.Error("persistence error",
			slog.String("op", perr.Op),
			slog.String("error", perr.Error()),
			slog.String("request_id", requestID),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     model.ErrCodePersistence,
			Message:  "failed to access the data store",
			Category: "system",
		})
		return
	}

	if model.IsGradeReportingError(err) {
		slog.Error("grade reporting error",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     model.ErrCodeGradeReporting,
			Message:  err.Error(),
			Category: "grade",
		})
		return
	}

	// 上記以外は内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidContext:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
