// Package model はドメインモデルを定義する。
package model

import "time"

// User はLMSから起動したユーザーを表す。
// 初回起動時に作成され、以降はCOALESCEで指定されたフィールドのみ更新される。
type User struct {
	UserID     string
	GivenName  *string
	FamilyName *string
	Name       *string
	Email      string
	Roles      []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserProfile はユーザーUPSERTの入力。空文字列は「未指定」として扱う。
type UserProfile struct {
	UserID     string
	GivenName  string
	FamilyName string
	Name       string
	Email      string
	Roles      []string
}

// PlaceholderEmail はメールアドレスが無いユーザーに割り当てる決定的なアドレスを返す。
func PlaceholderEmail(userID string) string {
	return userID + "@placeholder.com"
}

// ProfileFromIdentity は起動トークンからUPSERT用のプロフィールを組み立てる。
func ProfileFromIdentity(t *IdentityToken) UserProfile {
	return UserProfile{
		UserID:     t.Subject,
		GivenName:  t.UserInfo.GivenName,
		FamilyName: t.UserInfo.FamilyName,
		Name:       t.UserInfo.Name,
		Email:      t.UserInfo.Email,
		Roles:      t.Roles(),
	}
}

// AudioFile はアップロードされた録音ファイルを表す。
type AudioFile struct {
	ID        string
	UserID    string
	FileName  string
	FileURL   string
	MimeType  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRecordings はユーザーごとに集約された録音一覧。
// Recordingsは作成日時の昇順。
type UserRecordings struct {
	UserID     string
	Name       *string
	Email      string
	GivenName  *string
	FamilyName *string
	Recordings []AudioFile
}
