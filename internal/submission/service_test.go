package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/audiolti/internal/grade"
	"github.com/hitoshi/audiolti/internal/metrics"
	"github.com/hitoshi/audiolti/internal/model"
	"github.com/hitoshi/audiolti/internal/presenter"
	"github.com/hitoshi/audiolti/internal/role"
	"github.com/hitoshi/audiolti/internal/security"
)

// --- モック ---

type mockStore struct {
	createFn func(ctx context.Context, sub *model.Submission) error
	listFn   func(ctx context.Context, userID string, instructor bool, limit, offset int) ([]*model.Submission, int, error)

	created     []*model.Submission
	createCalls int
}

func (m *mockStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	m.createCalls++
	if m.createFn != nil {
		if err := m.createFn(ctx, sub); err != nil {
			return err
		}
	}
	if sub.ID == "" {
		sub.ID = "sub-generated"
	}
	sub.CreatedAt = time.Now()
	m.created = append(m.created, sub)
	return nil
}

func (m *mockStore) ListSubmissions(ctx context.Context, userID string, instructor bool, limit, offset int) ([]*model.Submission, int, error) {
	return m.listFn(ctx, userID, instructor, limit, offset)
}

func (m *mockStore) UpdateFeedback(ctx context.Context, id, feedback, feedbackBy string, feedbackAt time.Time) error {
	return nil
}

type mockReporter struct {
	submitFn func(ctx context.Context, identity *model.IdentityToken, req grade.Request) (*model.GradeReceipt, error)

	requests []grade.Request
}

func (m *mockReporter) SubmitGrade(ctx context.Context, identity *model.IdentityToken, req grade.Request) (*model.GradeReceipt, error) {
	m.requests = append(m.requests, req)
	if m.submitFn != nil {
		return m.submitFn(ctx, identity, req)
	}
	return &model.GradeReceipt{LineItemID: "li-1", UserID: identity.Subject, GradingProgress: req.GradingProgress}, nil
}

// --- ヘルパー ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func newTestService(store *mockStore, reporter *mockReporter) *Service {
	return NewService(store, reporter, security.NewTextSanitizer(), metrics.Nop{}, testLogger())
}

func studentIdentity(t *testing.T) *model.IdentityToken {
	t.Helper()

	raw := `{
		"user": "student-1",
		"userInfo": {"given_name": "Ada", "family_name": "Lovelace", "name": "Ada Lovelace", "email": "ada@example.com"},
		"platformContext": {
			"roles": ["http://purl.imsglobal.org/vocab/lis/v2/membership#Learner"],
			"resource": {"id": "rl-1", "title": "Week 1"},
			"context": {"id": "c-1", "title": "Music 101", "label": "MUS101"},
			"targetLinkUri": "https://tool.example.com/launch",
			"custom_field": "kept"
		}
	}`
	var identity model.IdentityToken
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		t.Fatalf("failed to decode identity: %v", err)
	}
	return &identity
}

var (
	studentPerm    = role.Classify([]string{"http://purl.imsglobal.org/vocab/lis/v2/membership#Learner"})
	instructorPerm = role.Classify([]string{"http://purl.imsglobal.org/vocab/lis/v2/membership#Instructor"})
	nonePerm       = role.Classify(nil)
)

func floatPtr(v float64) *float64 { return &v }

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("code = %q, want %q", apiErr.Code, code)
	}
}

// --- SubmitAudio ---

func TestSubmitAudio_Success(t *testing.T) {
	store := &mockStore{}
	reporter := &mockReporter{}
	svc := newTestService(store, reporter)

	identity := studentIdentity(t)
	receipt, err := svc.SubmitAudio(context.Background(), identity, studentPerm, AudioResource{
		Title:    "Autumn Leaves",
		Artist:   "Trio",
		Link:     "https://example.com/track",
		Duration: 125,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.createCalls != 1 {
		t.Fatalf("CreateSubmission calls = %d, want 1", store.createCalls)
	}
	sub := store.created[0]
	if sub.UserID != "student-1" || sub.Title != "Autumn Leaves" || sub.Duration != 125 {
		t.Errorf("保存内容が不正です: %+v", sub)
	}
	if !json.Valid(sub.PlatformContext) || !bytes.Contains(sub.PlatformContext, []byte(`"custom_field": "kept"`)) {
		t.Errorf("platformContextは起動時のJSONをそのまま保存するべき: %s", sub.PlatformContext)
	}

	if receipt.SubmissionID != sub.ID {
		t.Errorf("SubmissionID = %q, want %q", receipt.SubmissionID, sub.ID)
	}
	if receipt.Token != identity {
		t.Error("Tokenは起動トークンをそのまま返すべき")
	}
	if receipt.GradeSubmissionResult.GradeReceipt == nil || receipt.GradeSubmissionResult.Error != "" {
		t.Errorf("GradeSubmissionResult = %+v", receipt.GradeSubmissionResult)
	}

	if len(reporter.requests) != 1 {
		t.Fatalf("SubmitGrade calls = %d, want 1", len(reporter.requests))
	}
	req := reporter.requests[0]
	if req.Score != nil {
		t.Error("提出時の通知ではスコアは未設定であるべき")
	}
	if req.ActivityProgress != grade.ActivitySubmitted || req.GradingProgress != grade.GradingPending {
		t.Errorf("progress = %s/%s, want Submitted/PendingManual", req.ActivityProgress, req.GradingProgress)
	}
}

func TestSubmitAudio_BuildsResourceItem(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store, &mockReporter{})

	receipt, err := svc.SubmitAudio(context.Background(), studentIdentity(t), studentPerm, AudioResource{
		Title:  "Blue in Green",
		Artist: "Quartet",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(receipt.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(receipt.Items))
	}
	item := receipt.Items[0]
	if item.Type != "ltiResourceLink" || item.Title != "Blue in Green" || item.Text != "Blue in Green" {
		t.Errorf("item header = %+v", item)
	}
	if item.URL != "https://tool.example.com/launch" {
		t.Errorf("URL = %q, want targetLinkUri", item.URL)
	}
	if item.Custom.AssignmentType != "audio_recording" || item.Custom.Artist != "Quartet" {
		t.Errorf("custom = %+v", item.Custom)
	}
	if item.Custom.Duration != model.DefaultDuration {
		t.Errorf("duration = %d, want %d", item.Custom.Duration, model.DefaultDuration)
	}
	if item.Custom.Transcript["status"] != "pending" {
		t.Errorf("transcriptは既定のプレースホルダーであるべき: %+v", item.Custom.Transcript)
	}
	if item.UserInfo.Sub != "student-1" || item.UserInfo.Name != "Ada Lovelace" || item.UserInfo.Email != "ada@example.com" {
		t.Errorf("userInfo = %+v", item.UserInfo)
	}
	if store.created[0].Duration != model.DefaultDuration {
		t.Errorf("保存される再生時間 = %d, want 1200", store.created[0].Duration)
	}
}

func TestSubmitAudio_KeepsGivenTranscript(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockReporter{})

	receipt, err := svc.SubmitAudio(context.Background(), studentIdentity(t), studentPerm, AudioResource{
		Title:      "Song",
		Artist:     "Band",
		Transcript: map[string]any{"status": "done", "text": "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Items[0].Custom.Transcript["text"] != "hello" {
		t.Errorf("transcript = %+v", receipt.Items[0].Custom.Transcript)
	}
}

func TestSubmitAudio_SanitizesInput(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store, &mockReporter{})

	_, err := svc.SubmitAudio(context.Background(), studentIdentity(t), studentPerm, AudioResource{
		Title:  "<b>Song</b>",
		Artist: `<script>alert(1)</script>Band`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created[0].Title != "Song" || store.created[0].Artist != "Band" {
		t.Errorf("title/artist = %q/%q", store.created[0].Title, store.created[0].Artist)
	}
}

func TestSubmitAudio_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		perm     role.Permission
		identity func(t *testing.T) *model.IdentityToken
		res      AudioResource
		wantCode string
	}{
		{
			name:     "講師は提出できない",
			perm:     instructorPerm,
			identity: studentIdentity,
			res:      AudioResource{Title: "Song", Artist: "Band"},
			wantCode: model.ErrCodeForbidden,
		},
		{
			name:     "ロール無しは提出できない",
			perm:     nonePerm,
			identity: studentIdentity,
			res:      AudioResource{Title: "Song", Artist: "Band"},
			wantCode: model.ErrCodeForbidden,
		},
		{
			name: "コンテキスト無し",
			perm: studentPerm,
			identity: func(t *testing.T) *model.IdentityToken {
				return &model.IdentityToken{Subject: "student-1"}
			},
			res:      AudioResource{Title: "Song", Artist: "Band"},
			wantCode: model.ErrCodeInvalidContext,
		},
		{
			name:     "タイトル無し",
			perm:     studentPerm,
			identity: studentIdentity,
			res:      AudioResource{Artist: "Band"},
			wantCode: model.ErrCodeValidation,
		},
		{
			name:     "アーティスト無し",
			perm:     studentPerm,
			identity: studentIdentity,
			res:      AudioResource{Title: "Song"},
			wantCode: model.ErrCodeValidation,
		},
		{
			name:     "タグのみのタイトル",
			perm:     studentPerm,
			identity: studentIdentity,
			res:      AudioResource{Title: "<b></b>", Artist: "Band"},
			wantCode: model.ErrCodeValidation,
		},
		{
			name: "権限チェックはコンテキストより先",
			perm: instructorPerm,
			identity: func(t *testing.T) *model.IdentityToken {
				return &model.IdentityToken{Subject: "inst-1"}
			},
			res:      AudioResource{},
			wantCode: model.ErrCodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			reporter := &mockReporter{}
			svc := newTestService(store, reporter)

			_, err := svc.SubmitAudio(context.Background(), tt.identity(t), tt.perm, tt.res)
			assertAPIErrorCode(t, err, tt.wantCode)

			if store.createCalls != 0 {
				t.Errorf("CreateSubmission calls = %d, want 0", store.createCalls)
			}
			if len(reporter.requests) != 0 {
				t.Errorf("SubmitGrade calls = %d, want 0", len(reporter.requests))
			}
		})
	}
}

func TestSubmitAudio_GradeFailureIsAdvisory(t *testing.T) {
	store := &mockStore{}
	reporter := &mockReporter{
		submitFn: func(ctx context.Context, identity *model.IdentityToken, req grade.Request) (*model.GradeReceipt, error) {
			return nil, model.NewGradeReportingError(errors.New("line item service unavailable"))
		},
	}
	svc := newTestService(store, reporter)

	receipt, err := svc.SubmitAudio(context.Background(), studentIdentity(t), studentPerm, AudioResource{
		Title:  "Song",
		Artist: "Band",
	})
	if err != nil {
		t.Fatalf("通知の失敗で提出が失敗してはならない: %v", err)
	}
	if store.createCalls != 1 {
		t.Errorf("提出物は保存されたままであるべき: calls = %d", store.createCalls)
	}
	if receipt.GradeSubmissionResult.Error != "line item service unavailable" {
		t.Errorf("Error = %q", receipt.GradeSubmissionResult.Error)
	}
	if receipt.GradeSubmissionResult.GradeReceipt != nil {
		t.Error("失敗時はGradeReceiptはnilであるべき")
	}

	b, err := json.Marshal(receipt)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Contains(b, []byte(`"gradeSubmissionResult":{"error":"line item service unavailable"}`)) {
		t.Errorf("gradeSubmissionResult.errorとしてシリアライズされるべき: %s", b)
	}
}

func TestSubmitAudio_StoreFailure(t *testing.T) {
	store := &mockStore{
		createFn: func(ctx context.Context, sub *model.Submission) error {
			return errors.New("connection refused")
		},
	}
	reporter := &mockReporter{}
	svc := newTestService(store, reporter)

	_, err := svc.SubmitAudio(context.Background(), studentIdentity(t), studentPerm, AudioResource{
		Title:  "Song",
		Artist: "Band",
	})

	var perr *model.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *model.PersistenceError, got %T: %v", err, err)
	}
	if len(reporter.requests) != 0 {
		t.Error("保存に失敗した場合は通知しないべき")
	}
}

func TestSubmitAudio_IgnoresClientCancellation(t *testing.T) {
	store := &mockStore{
		createFn: func(ctx context.Context, sub *model.Submission) error {
			return ctx.Err()
		},
	}
	svc := newTestService(store, &mockReporter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.SubmitAudio(ctx, studentIdentity(t), studentPerm, AudioResource{Title: "Song", Artist: "Band"}); err != nil {
		t.Fatalf("キャンセル済みのコンテキストでも保存は継続するべき: %v", err)
	}
}

// --- GradeSubmission ---

func TestGradeSubmission_Success(t *testing.T) {
	reporter := &mockReporter{}
	svc := newTestService(&mockStore{}, reporter)

	identity := studentIdentity(t)
	identity.Subject = "inst-1"

	receipt, err := svc.GradeSubmission(context.Background(), identity, instructorPerm, GradeInput{
		Score:  floatPtr(87),
		UserID: "student-9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt == nil {
		t.Fatal("expected receipt")
	}

	req := reporter.requests[0]
	if req.Score == nil || *req.Score != 87 || req.UserID != "student-9" {
		t.Errorf("request = %+v", req)
	}
	if req.ActivityProgress != grade.ActivityCompleted || req.GradingProgress != grade.GradingFullyDone {
		t.Errorf("progress = %s/%s, want Completed/FullyGraded", req.ActivityProgress, req.GradingProgress)
	}
}

func TestGradeSubmission_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		perm     role.Permission
		in       GradeInput
		wantCode string
	}{
		{"学生は採点できない", studentPerm, GradeInput{Score: floatPtr(10)}, model.ErrCodeForbidden},
		{"ロール無しは採点できない", nonePerm, GradeInput{Score: floatPtr(10)}, model.ErrCodeForbidden},
		{"点数無し", instructorPerm, GradeInput{}, model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &mockReporter{}
			svc := newTestService(&mockStore{}, reporter)

			_, err := svc.GradeSubmission(context.Background(), studentIdentity(t), tt.perm, tt.in)
			assertAPIErrorCode(t, err, tt.wantCode)
			if len(reporter.requests) != 0 {
				t.Error("検証に失敗した場合は送信しないべき")
			}
		})
	}
}

func TestGradeSubmission_PropagatesFailure(t *testing.T) {
	reporter := &mockReporter{
		submitFn: func(ctx context.Context, identity *model.IdentityToken, req grade.Request) (*model.GradeReceipt, error) {
			return nil, model.NewGradeReportingError(errors.New("401 from platform"))
		},
	}
	svc := newTestService(&mockStore{}, reporter)

	_, err := svc.GradeSubmission(context.Background(), studentIdentity(t), instructorPerm, GradeInput{Score: floatPtr(50)})
	if !model.IsGradeReportingError(err) {
		t.Fatalf("expected GradeReportingError, got %T: %v", err, err)
	}
}

// --- ListSubmissions ---

func TestListSubmissions_StudentIsFiltered(t *testing.T) {
	var gotUser string
	var gotInstructor bool
	var gotLimit, gotOffset int

	store := &mockStore{
		listFn: func(ctx context.Context, userID string, instructor bool, limit, offset int) ([]*model.Submission, int, error) {
			gotUser, gotInstructor, gotLimit, gotOffset = userID, instructor, limit, offset
			return []*model.Submission{{ID: "s1", UserID: userID, Duration: 65}}, 11, nil
		},
	}
	svc := newTestService(store, &mockReporter{})

	page, err := svc.ListSubmissions(context.Background(), studentIdentity(t), studentPerm, presenter.NewPage(2, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotUser != "student-1" || gotInstructor || gotLimit != 5 || gotOffset != 5 {
		t.Errorf("store args = %q/%v/%d/%d", gotUser, gotInstructor, gotLimit, gotOffset)
	}
	if page.IsInstructor {
		t.Error("IsInstructor should be false")
	}
	if page.Pagination.TotalPages != 3 || page.Pagination.TotalCount != 11 {
		t.Errorf("pagination = %+v", page.Pagination)
	}
	if page.Submissions[0].DurationFormatted != "1:05" {
		t.Errorf("DurationFormatted = %q", page.Submissions[0].DurationFormatted)
	}
}

func TestListSubmissions_InstructorSeesAll(t *testing.T) {
	store := &mockStore{
		listFn: func(ctx context.Context, userID string, instructor bool, limit, offset int) ([]*model.Submission, int, error) {
			if !instructor {
				t.Error("instructor flag should be true")
			}
			return nil, 0, nil
		},
	}
	svc := newTestService(store, &mockReporter{})

	page, err := svc.ListSubmissions(context.Background(), studentIdentity(t), instructorPerm, presenter.NewPage(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.IsInstructor || len(page.Submissions) != 0 {
		t.Errorf("page = %+v", page)
	}
}

func TestListSubmissions_StoreFailure(t *testing.T) {
	store := &mockStore{
		listFn: func(ctx context.Context, userID string, instructor bool, limit, offset int) ([]*model.Submission, int, error) {
			return nil, 0, errors.New("db down")
		},
	}
	svc := newTestService(store, &mockReporter{})

	_, err := svc.ListSubmissions(context.Background(), studentIdentity(t), studentPerm, presenter.NewPage(1, 10))
	var perr *model.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *model.PersistenceError, got %T", err)
	}
}
