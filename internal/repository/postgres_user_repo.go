package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/audiolti/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// UpsertUser はユーザーを作成または更新する。
//
// 新規作成時にメールアドレスが無い場合は "<userId>@placeholder.com" を設定する。
// 既存ユーザーの更新では、空の項目は以前の値を保持する（COALESCE）。
// rolesは指定された場合のみ上書きし、updated_atは常に更新する。
func (r *PostgresUserRepo) UpsertUser(ctx context.Context, p model.UserProfile) (*model.User, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	insertEmail := p.Email
	if insertEmail == "" {
		insertEmail = model.PlaceholderEmail(p.UserID)
	}
	insertRoles := p.Roles
	if insertRoles == nil {
		insertRoles = []string{}
	}

	user := &model.User{}
	var givenName, familyName, name sql.NullString

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (user_id, given_name, family_name, name, email, roles)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   given_name  = COALESCE(EXCLUDED.given_name, users.given_name),
		   family_name = COALESCE(EXCLUDED.family_name, users.family_name),
		   name        = COALESCE(EXCLUDED.name, users.name),
		   email       = COALESCE($7, users.email),
		   roles       = COALESCE($8::text[], users.roles),
		   updated_at  = now()
		 RETURNING user_id, given_name, family_name, name, email, roles, created_at, updated_at`,
		p.UserID, nullString(p.GivenName), nullString(p.FamilyName), nullString(p.Name),
		insertEmail, pq.Array(insertRoles),
		nullString(p.Email), pq.Array(p.Roles),
	).Scan(
		&user.UserID, &givenName, &familyName, &name,
		&user.Email, pq.Array(&user.Roles), &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザーのUPSERTに失敗しました: %w", err)
	}

	user.GivenName = nullStringPtr(givenName)
	user.FamilyName = nullStringPtr(familyName)
	user.Name = nullStringPtr(name)

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
