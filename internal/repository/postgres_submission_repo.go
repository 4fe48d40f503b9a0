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

// PostgresSubmissionRepo はPostgreSQLを使用した提出物リポジトリ。
type PostgresSubmissionRepo struct {
	db *sql.DB
}

// NewPostgresSubmissionRepo はPostgresSubmissionRepoを生成する。
func NewPostgresSubmissionRepo(db *sql.DB) *PostgresSubmissionRepo {
	return &PostgresSubmissionRepo{db: db}
}

// CreateSubmission は提出物を作成する。
// IDが空の場合はUUIDを採番し、作成日時はDBの現在時刻を設定する。
func (r *PostgresSubmissionRepo) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	items := sub.Items
	if items == nil {
		items = []model.ResourceItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("itemsのJSON変換に失敗しました: %w", err)
	}

	// jsonbにはテキストとして渡す
	var platformContext any
	if len(sub.PlatformContext) > 0 {
		platformContext = string(sub.PlatformContext)
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO submissions
		   (id, user_id, title, artist, link, duration, platform_context, items)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		sub.ID, sub.UserID, sub.Title, sub.Artist, nullString(sub.Link),
		sub.Duration.OrDefault().Seconds(), platformContext, string(itemsJSON),
	).Scan(&sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("提出物の作成に失敗しました: %w", err)
	}

	return nil
}

// ListSubmissions は作成日時の降順で提出物を返す。
// instructorがfalseの場合は本人の提出物のみを返す。
func (r *PostgresSubmissionRepo) ListSubmissions(ctx context.Context, userID string, instructor bool, limit, offset int) ([]*model.Submission, int, error) {
	var (
		where string
		args  []any
	)
	if !instructor {
		where = "WHERE user_id = $1"
		args = append(args, userID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM submissions "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("提出物件数の取得に失敗しました: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, user_id, title, artist, link, duration,
		        feedback, feedback_by, feedback_at,
		        platform_context, items, created_at
		 FROM submissions %s
		 ORDER BY created_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("提出物一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	subs := make([]*model.Submission, 0, limit)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("提出物一覧の読み取りに失敗しました: %w", err)
	}

	return subs, total, nil
}

// UpdateFeedback はフィードバック、記入者、記入日時を同時に更新する。
// 後から書き込んだ値が優先される。
func (r *PostgresSubmissionRepo) UpdateFeedback(ctx context.Context, id, feedback, feedbackBy string, feedbackAt time.Time) error {
	// UUIDとして不正なIDは存在しない行として扱う
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE submissions
		 SET feedback = $1, feedback_by = $2, feedback_at = $3
		 WHERE id = $4`,
		feedback, feedbackBy, feedbackAt, id,
	)
	if err != nil {
		return fmt.Errorf("フィードバックの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSubmission(rows *sql.Rows) (*model.Submission, error) {
	sub := &model.Submission{}
	var (
		link, feedback, feedbackBy sql.NullString
		feedbackAt                 sql.NullTime
		duration                   int
		platformContext, items     []byte
	)

	if err := rows.Scan(
		&sub.ID, &sub.UserID, &sub.Title, &sub.Artist, &link, &duration,
		&feedback, &feedbackBy, &feedbackAt,
		&platformContext, &items, &sub.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("提出物のスキャンに失敗しました: %w", err)
	}

	sub.Link = nullStringValue(link)
	sub.Duration = model.Duration(duration)
	sub.Feedback = nullStringPtr(feedback)
	sub.FeedbackBy = nullStringPtr(feedbackBy)
	if feedbackAt.Valid {
		t := feedbackAt.Time
		sub.FeedbackAt = &t
	}
	if len(platformContext) > 0 {
		sub.PlatformContext = json.RawMessage(platformContext)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &sub.Items); err != nil {
			return nil, fmt.Errorf("提出物 %s のitemsのパースに失敗しました: %w", sub.ID, err)
		}
	}

	return sub, nil
}

// compile-time interface check
var _ SubmissionRepository = (*PostgresSubmissionRepo)(nil)
