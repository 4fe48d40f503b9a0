// Package role はLMSのロール文字列から粗い権限区分を導出する。
package role

import "strings"

// instructorMarkers は講師区分とみなすロール文字列の部分一致キー（大文字小文字を区別する）。
var instructorMarkers = []string{"Instructor", "Administrator", "SysAdmin"}

// studentMarkers は学生区分とみなすロール文字列の部分一致キー。
var studentMarkers = []string{"Student", "Learner"}

// Permission はリクエスト単位で1回だけ計算される権限区分。
// ハンドラーからサービスへ明示的に渡し、各所で再計算しない。
type Permission struct {
	instructor bool
	student    bool
}

// Classify はロール一覧から権限区分を導出する。
// ロールの正規化は行わない。両方の区分に一致する場合は講師区分が優先される。
func Classify(roles []string) Permission {
	var p Permission
	for _, r := range roles {
		if containsAny(r, instructorMarkers) {
			p.instructor = true
		}
		if containsAny(r, studentMarkers) {
			p.student = true
		}
	}
	return p
}

// IsInstructor は講師区分（講師・管理者）かを返す。
func (p Permission) IsInstructor() bool {
	return p.instructor
}

// IsStudent は学生区分かを返す。講師区分に一致するロールがある場合はfalse。
func (p Permission) IsStudent() bool {
	return p.student && !p.instructor
}

// String はログ出力用の区分名を返す。
func (p Permission) String() string {
	switch {
	case p.instructor:
		return "instructor"
	case p.student:
		return "student"
	default:
		return "none"
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
