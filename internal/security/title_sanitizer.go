// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TitleSanitizer は利用者が入力したTodoのタイトルからマークアップを除去し、
// プレーンテキストとして保存できる形に正規化する。
// bluemondayのStrictPolicyで全タグを除去した後、エンティティを復元する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TitleSanitizer はプレーンテキストへのサニタイズ機能のインターフェースを定義する。
type TitleSanitizer interface {
	// SanitizeTitle は全てのHTMLタグを除去し、連続する空白を1つにまとめて返す。
	// scriptやstyleの中身はテキストとしても残さない。
	SanitizeTitle(raw string) string
}

// titleSanitizer はTitleSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type titleSanitizer struct {
	policy *bluemonday.Policy
}

// NewTitleSanitizer はTitleSanitizerの新しいインスタンスを生成する。
func NewTitleSanitizer() *titleSanitizer {
	return &titleSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeTitle はタイトルをプレーンテキストに正規化する。
func (s *titleSanitizer) SanitizeTitle(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
