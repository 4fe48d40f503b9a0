// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は提出物のタイトル・アーティスト名・フィードバック本文から
// マークアップを除去する。これらの値はLMSに埋め込まれるリソース項目や
// 一覧画面にそのまま表示されるため、保存前にプレーンテキスト化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力をプレーンテキストに正規化するインターフェース。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// エンティティは元の文字に戻すため、"Simon & Garfunkel" はそのまま維持される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses はエスケープの入れ子を解く回数の上限。
const maxSanitizePasses = 8

// Sanitize はタグを除去したプレーンテキストを返す。
// エスケープ済みのマークアップ（&lt;script&gt; など）は元に戻すと有効なタグになるため、
// タグ除去とエンティティ復元を値が変わらなくなるまで繰り返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	cur := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(cur))
		if next == cur {
			return strings.TrimSpace(cur)
		}
		cur = next
	}
	// 収束しない入れ子はエスケープしたまま返す
	return strings.TrimSpace(s.policy.Sanitize(cur))
}
