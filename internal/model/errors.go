// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// Messageはレスポンスの error フィールドとしてそのまま返される。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, submission, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeInvalidContext = "INVALID_CONTEXT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodePersistence    = "PERSISTENCE_ERROR"
	ErrCodeGradeReporting = "GRADE_REPORTING_ERROR"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
)

// NewValidationError は必須項目の欠落や形式不正を表すエラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
	}
}

// NewForbiddenError はロールによる権限チェックに失敗した場合のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
	}
}

// NewInvalidContextError はプラットフォームコンテキストが欠落している場合のエラーを生成する。
func NewInvalidContextError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContext,
		Message:  "invalid or missing platform context",
		Category: "validation",
	}
}

// NewSubmissionNotFoundError は提出物が見つからない場合のエラーを生成する。
func NewSubmissionNotFoundError(submissionID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("submission not found: %s", submissionID),
		Category: "submission",
	}
}

// NewUnauthorizedError はセッショントークンが無い、または無効な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "missing or invalid session token",
		Category: "auth",
	}
}

// PersistenceError はストアの利用不可やクエリ失敗を表す。
// 詳細はログにのみ出力し、レスポンスには一般的なメッセージを返す。
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError はPersistenceErrorを生成する。
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// GradeReportingError は外部の成績サービスとの通信失敗を表す。
// 提出時の自動通知ではレスポンスの補助フィールドに格下げされ、
// 手動採点ではリクエストエラーとして返される。
type GradeReportingError struct {
	Err error
}

// NewGradeReportingError はGradeReportingErrorを生成する。
func NewGradeReportingError(err error) *GradeReportingError {
	return &GradeReportingError{Err: err}
}

func (e *GradeReportingError) Error() string {
	if e.Err == nil {
		return "grade reporting failed"
	}
	return e.Err.Error()
}

func (e *GradeReportingError) Unwrap() error {
	return e.Err
}

// IsGradeReportingError はerrがGradeReportingErrorを含むかを判定する。
func IsGradeReportingError(err error) bool {
	var gre *GradeReportingError
	return errors.As(err, &gre)
}
