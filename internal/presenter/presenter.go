// Package presenter は一覧取得結果をページング付きのレスポンス形式に整形する。
package presenter

import (
	"math"
	"strconv"
	"time"

	"github.com/hitoshi/audiolti/internal/model"
)

// ページングの既定値と上限。
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxPage はOffsetがINTEGERの範囲に収まるページ番号の上限。
	MaxPage = math.MaxInt32 / MaxLimit
)

// AIFeedbackHints は全提出物に付与する固定のフィードバック例。
// 音声の解析結果ではない。
var AIFeedbackHints = []string{
	"Good pitch control throughout the recording",
	"Consider more dynamic contrast between sections",
	"Timing is steady; watch the tempo in transitions",
}

// Page はページ番号と1ページあたりの件数。
type Page struct {
	Page  int
	Limit int
}

// NewPage は既定値と上限を適用したPageを返す。
// pageが1未満なら1、MaxPage超ならMaxPage、limitが1未満なら10、100超なら100になる。
func NewPage(page, limit int) Page {
	if page < 1 {
		page = DefaultPage
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

// ParsePage はクエリ文字列からPageを生成する。数値でない値は未指定として扱う。
func ParsePage(page, limit string) Page {
	p, _ := strconv.Atoi(page)
	l, _ := strconv.Atoi(limit)
	return NewPage(p, l)
}

// Offset は (page-1)*limit を返す。
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TotalPages は ceil(total/limit) を返す。
func (p Page) TotalPages(total int) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// Pagination はレスポンスに含めるページング情報。
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

func (p Page) pagination(total int) Pagination {
	return Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		TotalCount: total,
		TotalPages: p.TotalPages(total),
	}
}

// SubmissionView は提出物一覧の1行。
// UserInfoは提出時点のスナップショットで、現在のユーザー情報とは結合しない。
type SubmissionView struct {
	ID                string               `json:"id"`
	UserID            string               `json:"userId"`
	Title             string               `json:"title"`
	Artist            string               `json:"artist"`
	Link              string               `json:"link,omitempty"`
	Duration          int                  `json:"duration"`
	DurationFormatted string               `json:"durationFormatted"`
	CreatedAt         time.Time            `json:"createdAt"`
	UserInfo          *model.SubmitterInfo `json:"userInfo"`
	Transcript        map[string]any       `json:"transcript"`
	AIFeedback        []string             `json:"aiFeedback"`
	Feedback          *string              `json:"feedback"`
	FeedbackBy        *string              `json:"feedbackBy"`
	FeedbackAt        *time.Time           `json:"feedbackAt"`
}

// SubmissionPage は提出物一覧のレスポンス。
type SubmissionPage struct {
	Submissions  []SubmissionView `json:"submissions"`
	Pagination   Pagination       `json:"pagination"`
	IsInstructor bool             `json:"isInstructor"`
}

// Submissions は提出物の行をページング付きの一覧に整形する。
func Submissions(subs []*model.Submission, total int, page Page, instructor bool) SubmissionPage {
	views := make([]SubmissionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, submissionView(s))
	}
	return SubmissionPage{
		Submissions:  views,
		Pagination:   page.pagination(total),
		IsInstructor: instructor,
	}
}

func submissionView(s *model.Submission) SubmissionView {
	v := SubmissionView{
		ID:                s.ID,
		UserID:            s.UserID,
		Title:             s.Title,
		Artist:            s.Artist,
		Link:              s.Link,
		Duration:          s.Duration.Seconds(),
		DurationFormatted: s.Duration.String(),
		CreatedAt:         s.CreatedAt,
		AIFeedback:        append([]string(nil), AIFeedbackHints...),
	}
	// 本文・記入者・日時が揃っている場合のみ表示する
	if s.HasFeedback() {
		v.Feedback = s.Feedback
		v.FeedbackBy = s.FeedbackBy
		v.FeedbackAt = s.FeedbackAt
	}

	if len(s.Items) > 0 {
		first := s.Items[0]
		info := first.UserInfo
		v.UserInfo = &info
		v.Transcript = first.Custom.Transcript
	}
	return v
}

// RecordingView は録音1件。
type RecordingView struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	FileURL   string    `json:"fileUrl"`
	MimeType  *string   `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRecordingsView はユーザー1人分の録音一覧。
type UserRecordingsView struct {
	UserID     string          `json:"userId"`
	Name       *string         `json:"name"`
	Email      string          `json:"email"`
	GivenName  *string         `json:"givenName"`
	FamilyName *string         `json:"familyName"`
	Recordings []RecordingView `json:"recordings"`
}

// RecordingPage は録音一覧のレスポンス。
type RecordingPage struct {
	Recordings   []UserRecordingsView `json:"recordings"`
	Pagination   Pagination           `json:"pagination"`
	IsInstructor bool                 `json:"isInstructor"`
}

// Recordings はユーザーごとの録音をページング付きの一覧に整形する。
// 各ユーザーの録音は受け取った順序を維持する。
func Recordings(rows []model.UserRecordings, total int, page Page, instructor bool) RecordingPage {
	views := make([]UserRecordingsView, 0, len(rows))
	for _, r := range rows {
		recs := make([]RecordingView, 0, len(r.Recordings))
		for _, a := range r.Recordings {
			recs = append(recs, RecordingView{
				ID:        a.ID,
				FileName:  a.FileName,
				FileURL:   a.FileURL,
				MimeType:  a.MimeType,
				CreatedAt: a.CreatedAt,
			})
		}
		views = append(views, UserRecordingsView{
			UserID:     r.UserID,
			Name:       r.Name,
			Email:      r.Email,
			GivenName:  r.GivenName,
			FamilyName: r.FamilyName,
			Recordings: recs,
		})
	}
	return RecordingPage{
		Recordings:   views,
		Pagination:   page.pagination(total),
		IsInstructor: instructor,
	}
}
