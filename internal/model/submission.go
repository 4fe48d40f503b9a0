package model

import (
	"encoding/json"
	"time"
)

// 提出物のディープリンク項目で使用する固定値。
const (
	ResourceItemType    = "ltiResourceLink"
	AssignmentTypeAudio = "audio_recording"
)

// Submission は学生の録音課題の提出物を表す。
// Feedback, FeedbackBy, FeedbackAt は全てnilか全て設定済みのいずれか。
type Submission struct {
	ID              string
	UserID          string
	Title           string
	Artist          string
	Link            string
	Duration        Duration
	CreatedAt       time.Time
	PlatformContext json.RawMessage
	Items           []ResourceItem
	Feedback        *string
	FeedbackBy      *string
	FeedbackAt      *time.Time
}

// HasFeedback はフィードバックが設定済みかを返す。
func (s *Submission) HasFeedback() bool {
	return s.Feedback != nil && s.FeedbackBy != nil && s.FeedbackAt != nil
}

// ResourceItem はLMSに埋め込み返すディープリンクのリソース項目。
// UserInfoは提出時点のプロフィールのスナップショットで、一覧表示に使用する。
type ResourceItem struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	URL      string         `json:"url,omitempty"`
	Custom   ResourceCustom `json:"custom"`
	UserInfo SubmitterInfo  `json:"userInfo"`
}

// ResourceCustom はリソース項目のカスタムペイロード。
type ResourceCustom struct {
	Link           string         `json:"link"`
	Artist         string         `json:"artist"`
	AssignmentType string         `json:"assignmentType"`
	Duration       Duration       `json:"duration"`
	Transcript     map[string]any `json:"transcript"`
}

// SubmitterInfo は提出者プロフィールのスナップショット。
type SubmitterInfo struct {
	Sub        string `json:"sub"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Name       string `json:"name"`
	Email      string `json:"email"`
}

// DefaultTranscript は文字起こしが指定されなかった場合のプレースホルダー。
func DefaultTranscript() map[string]any {
	return map[string]any{
		"status":   "pending",
		"language": "en",
		"text":     "Transcript not available yet.",
	}
}

// GradeReceipt は成績サービスへのスコア送信結果。
type GradeReceipt struct {
	LineItemID       string    `json:"lineItemId"`
	UserID           string    `json:"userId"`
	ScoreGiven       *float64  `json:"scoreGiven,omitempty"`
	ScoreMaximum     float64   `json:"scoreMaximum"`
	ActivityProgress string    `json:"activityProgress"`
	GradingProgress  string    `json:"gradingProgress"`
	Timestamp        time.Time `json:"timestamp"`
}
