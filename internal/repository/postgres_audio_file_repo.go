package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/audiolti/internal/model"
)

// PostgresAudioFileRepo はPostgreSQLを使用した録音ファイルリポジトリ。
type PostgresAudioFileRepo struct {
	db *sql.DB
}

// NewPostgresAudioFileRepo はPostgresAudioFileRepoを生成する。
func NewPostgresAudioFileRepo(db *sql.DB) *PostgresAudioFileRepo {
	return &PostgresAudioFileRepo{db: db}
}

// SaveAudioFile は録音ファイルのメタデータを保存する。
// userIDのユーザーは事前に存在している必要がある。
func (r *PostgresAudioFileRepo) SaveAudioFile(ctx context.Context, userID, fileName, fileURL string, mimeType *string) (*model.AudioFile, error) {
	if fileURL == "" {
		return nil, fmt.Errorf("file url is required")
	}

	af := &model.AudioFile{
		ID:       uuid.NewString(),
		UserID:   userID,
		FileName: fileName,
		MimeType: mimeType,
	}

	var mime sql.NullString
	if mimeType != nil {
		mime = nullString(*mimeType)
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO audio_files (id, user_id, file_name, file_url, mime_type)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING file_url, created_at, updated_at`,
		af.ID, userID, fileName, fileURL, mime,
	).Scan(&af.FileURL, &af.CreatedAt, &af.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("録音ファイルの保存に失敗しました: %w", err)
	}

	return af, nil
}

// recordingJSON はjson_aggで集約した録音1件の形式。
type recordingJSON struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	MimeType  *string   `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListRecordings は録音を持つユーザーを名前順に返す。
// 各ユーザーの録音は作成日時の昇順。instructorがfalseの場合は本人のみ。
func (r *PostgresAudioFileRepo) ListRecordings(ctx context.Context, userID string, instructor bool, limit, offset int) ([]model.UserRecordings, int, error) {
	var (
		where string
		args  []any
	)
	if !instructor {
		where = "WHERE u.user_id = $1"
		args = append(args, userID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT u.user_id)
		 FROM users u JOIN audio_files af ON u.user_id = af.user_id `+where,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("録音ユーザー数の取得に失敗しました: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT u.user_id, u.name, u.email, u.given_name, u.family_name,
		        json_agg(json_build_object(
		          'id', af.id,
		          'fileName', af.file_name,
		          'fileUrl', af.file_url,
		          'mimeType', af.mime_type,
		          'createdAt', af.created_at,
		          'updatedAt', af.updated_at
		        ) ORDER BY af.created_at, af.id) AS recordings
		 FROM users u
		 JOIN audio_files af ON u.user_id = af.user_id
		 %s
		 GROUP BY u.user_id, u.name, u.email, u.given_name, u.family_name
		 ORDER BY u.name NULLS LAST, u.user_id
		 LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("録音一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	result := make([]model.UserRecordings, 0, limit)
	for rows.Next() {
		var (
			ur                          model.UserRecordings
			name, givenName, familyName sql.NullString
			recordingsRaw               []byte
			recordings                  []recordingJSON
		)
		if err := rows.Scan(&ur.UserID, &name, &ur.Email, &givenName, &familyName, &recordingsRaw); err != nil {
			return nil, 0, fmt.Errorf("録音一覧のスキャンに失敗しました: %w", err)
		}
		if err := json.Unmarshal(recordingsRaw, &recordings); err != nil {
			return nil, 0, fmt.Errorf("録音一覧のパースに失敗しました: %w", err)
		}

		ur.Name = nullStringPtr(name)
		ur.GivenName = nullStringPtr(givenName)
		ur.FamilyName = nullStringPtr(familyName)
		ur.Recordings = make([]model.AudioFile, len(recordings))
		for i, rec := range recordings {
			ur.Recordings[i] = model.AudioFile{
				ID:        rec.ID,
				UserID:    ur.UserID,
				FileName:  rec.FileName,
				FileURL:   rec.FileURL,
				MimeType:  rec.MimeType,
				CreatedAt: rec.CreatedAt,
				UpdatedAt: rec.UpdatedAt,
			}
		}
		result = append(result, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("録音一覧の読み取りに失敗しました: %w", err)
	}

	return result, total, nil
}

// compile-time interface check
var _ AudioFileRepository = (*PostgresAudioFileRepo)(nil)
