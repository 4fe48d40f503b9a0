// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/audiolti/internal/model"
)

// ErrNotFound は更新対象の行が存在しないことを表す。
var ErrNotFound = errors.New("record not found")

// SubmissionRepository は提出物の永続化インターフェース。
type SubmissionRepository interface {
	// CreateSubmission は提出物を作成する。IDと作成日時はここで採番される。
	CreateSubmission(ctx context.Context, sub *model.Submission) error

	// ListSubmissions は作成日時の降順で提出物を返す。
	// instructorがfalseの場合はuserIDの提出物のみに絞り込み、件数も同じ条件で数える。
	ListSubmissions(ctx context.Context, userID string, instructor bool, limit, offset int) ([]*model.Submission, int, error)

	// UpdateFeedback はフィードバック3項目を1回のUPDATEで設定する。
	// 該当行が無い場合はErrNotFoundを返す。
	UpdateFeedback(ctx context.Context, id, feedback, feedbackBy string, feedbackAt time.Time) error
}

// UserRepository はユーザーの永続化インターフェース。
type UserRepository interface {
	// UpsertUser はユーザーを作成または更新する。
	// 既存ユーザーの場合、未指定の項目は以前の値を保持する。
	UpsertUser(ctx context.Context, profile model.UserProfile) (*model.User, error)
}

// AudioFileRepository は録音ファイルの永続化インターフェース。
type AudioFileRepository interface {
	// SaveAudioFile は録音ファイルのメタデータを保存する。
	SaveAudioFile(ctx context.Context, userID, fileName, fileURL string, mimeType *string) (*model.AudioFile, error)

	// ListRecordings は録音を持つユーザーごとに録音を集約して返す。
	// 件数は録音を1件以上持つユーザー数。
	ListRecordings(ctx context.Context, userID string, instructor bool, limit, offset int) ([]model.UserRecordings, int, error)
}

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

var _ HealthChecker = (*sql.DB)(nil)

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullStringPtr はsql.NullStringをポインタに変換する。NULLはnilになる。
func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
