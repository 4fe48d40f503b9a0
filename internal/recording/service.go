// Package recording は録音ファイルのアップロードと一覧取得を提供する。
package recording

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/audiolti/internal/metrics"
	"github.com/hitoshi/audiolti/internal/model"
	"github.com/hitoshi/audiolti/internal/presenter"
	"github.com/hitoshi/audiolti/internal/repository"
	"github.com/hitoshi/audiolti/internal/role"
	"github.com/hitoshi/audiolti/internal/storage"
)

// DefaultMaxBytes はアップロードサイズ上限の既定値（50MiB）。
const DefaultMaxBytes int64 = 50 << 20

// keyPrefix はオブジェクトキーの接頭辞。
const keyPrefix = "recordings"

// File はアップロードされた録音ファイル。
type File struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

// UploadReceipt はアップロード結果。PlaybackURLは一時的な再生用URLで、取得できない場合は空。
type UploadReceipt struct {
	ID          string `json:"id"`
	FileURL     string `json:"fileUrl"`
	PlaybackURL string `json:"playbackUrl,omitempty"`
}

// Service は録音ファイルのサービス層。
type Service struct {
	users    repository.UserRepository
	files    repository.AudioFileRepository
	objects  storage.ObjectStore
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	maxBytes int64
}

// NewService はServiceの新しいインスタンスを生成する。maxBytesが0以下の場合はDefaultMaxBytesを使用する。
func NewService(
	users repository.UserRepository,
	files repository.AudioFileRepository,
	objects storage.ObjectStore,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxBytes int64,
) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		users:    users,
		files:    files,
		objects:  objects,
		metrics:  collector,
		logger:   logger,
		maxBytes: maxBytes,
	}
}

// MaxBytes はアップロードサイズの上限を返す。
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload は録音ファイルを保存する。
// 起動ユーザーのプロフィールをUPSERTしてから、オブジェクトを保存しメタデータを記録する。
func (s *Service) Upload(ctx context.Context, identity *model.IdentityToken, f File) (*UploadReceipt, error) {
	if identity == nil || identity.Subject == "" || identity.PlatformContext == nil {
		return nil, model.NewInvalidContextError()
	}
	if f.Body == nil || f.Size <= 0 {
		return nil, model.NewValidationError("missing file")
	}
	if f.Size > s.maxBytes {
		return nil, model.NewValidationError(fmt.Sprintf("file too large: max %d bytes", s.maxBytes))
	}
	mimeType, err := audioMediaType(f.MimeType)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	user, err := s.users.UpsertUser(ctx, model.ProfileFromIdentity(identity))
	if err != nil {
		return nil, model.NewPersistenceError("upsert user", err)
	}

	fileName := filepath.Base(strings.ReplaceAll(f.Name, "\\", "/"))
	if fileName == "." || fileName == "/" {
		fileName = ""
	}
	key := objectKey(user.UserID, fileName)

	fileURL, err := s.objects.Put(ctx, key, mimeType, f.Body, f.Size)
	if err != nil {
		s.logger.Error("録音ファイルの保存に失敗しました",
			slog.String("user_id", user.UserID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPersistenceError("store recording", err)
	}

	if fileName == "" {
		fileName = filepath.Base(key)
	}
	saved, err := s.files.SaveAudioFile(ctx, user.UserID, fileName, fileURL, &mimeType)
	if err != nil {
		return nil, model.NewPersistenceError("save audio file", err)
	}
	s.metrics.RecordRecordingUpload(f.Size)

	receipt := &UploadReceipt{ID: saved.ID, FileURL: saved.FileURL}
	if playback, err := s.objects.PresignGet(ctx, key, storage.DefaultPresignExpiry); err != nil {
		s.logger.Warn("再生用URLの発行に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	} else {
		receipt.PlaybackURL = playback
	}

	s.logger.Info("録音ファイルを保存しました",
		slog.String("audio_file_id", saved.ID),
		slog.String("user_id", user.UserID),
		slog.Int64("size", f.Size),
	)
	return receipt, nil
}

// List は録音一覧をユーザーごとに集約してページング付きで返す。
// 講師区分は全ユーザー、それ以外は自分の録音のみ。
func (s *Service) List(ctx context.Context, identity *model.IdentityToken, perm role.Permission, page presenter.Page) (*presenter.RecordingPage, error) {
	if identity == nil {
		return nil, model.NewUnauthorizedError()
	}

	instructor := perm.IsInstructor()
	rows, total, err := s.files.ListRecordings(ctx, identity.Subject, instructor, page.Limit, page.Offset())
	if err != nil {
		return nil, model.NewPersistenceError("list recordings", err)
	}

	result := presenter.Recordings(rows, total, page, instructor)
	return &result, nil
}

// audioMediaType はContent-Typeを検証し、パラメータを除いたメディアタイプを返す。
func audioMediaType(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "audio/") {
		return "", model.NewValidationError("only audio files are accepted")
	}
	return mediaType, nil
}

// objectKey は recordings/<userId>/<uuid><ext> 形式のキーを生成する。
func objectKey(userID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !isSafeExt(ext) {
		ext = ""
	}
	return fmt.Sprintf("%s/%s/%s%s", keyPrefix, userID, uuid.New().String(), ext)
}

func isSafeExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
