// Package security はアプリケーションのセキュリティ機能を提供する。
//
// EventSanitizerService はカレンダープロバイダーから取得したイベントの
// 説明文・場所テキストをサニタイズし、XSS攻撃などのセキュリティリスクから
// ユーザーを保護する。Googleカレンダーのイベント説明文にはHTMLが
// 含まれることがあるため、bluemondayの許可リストベースのポリシーで
// 限られた整形タグのみを通過させる。
package security

import "github.com/microcosm-cc/bluemonday"

// EventSanitizerService はイベントテキストのサニタイズ機能のインターフェースを定義する。
// イベント正規化時に使用される。
type EventSanitizerService interface {
	// SanitizeDescription はイベント説明文のHTMLをサニタイズして返す。
	// 許可タグ（br, a, b, i, u, strong, em）のみを通過させ、
	// scriptタグやon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。冪等。
	SanitizeDescription(raw string) string

	// SanitizeText はHTMLタグを全て除去したプレーンテキストを返す。
	// 場所・タイトルなどHTMLを想定しないフィールドに使用する。
	SanitizeText(raw string) string
}

// eventSanitizer はEventSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type eventSanitizer struct {
	descPolicy *bluemonday.Policy
	textPolicy *bluemonday.Policy
}

// NewEventSanitizer はEventSanitizerServiceの新しいインスタンスを生成する。
// 説明文用ポリシーの内容:
//   - 許可タグ: br, a, b, i, u, strong, em（Googleカレンダーの説明文が使う範囲）
//   - aタグ: hrefのみ許可。target="_blank" と rel="noopener noreferrer" を強制付与
//   - script, iframe, styleおよびon*イベント属性は許可リスト外のため除去される
func NewEventSanitizer() *eventSanitizer {
	desc := bluemonday.NewPolicy()
	desc.AllowElements("br", "b", "i", "u", "strong", "em")
	desc.AllowAttrs("href").OnElements("a")
	desc.AllowStandardURLs()
	desc.AllowRelativeURLs(false)
	desc.AddTargetBlankToFullyQualifiedLinks(true)
	desc.RequireNoReferrerOnLinks(true)

	return &eventSanitizer{
		descPolicy: desc,
		textPolicy: bluemonday.StrictPolicy(),
	}
}

// SanitizeDescription はイベント説明文のHTMLをサニタイズして返す。
func (s *eventSanitizer) SanitizeDescription(raw string) string {
	if raw == "" {
		return ""
	}
	return s.descPolicy.Sanitize(raw)
}

// SanitizeText はHTMLタグを全て除去したプレーンテキストを返す。
func (s *eventSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	return s.textPolicy.Sanitize(raw)
}

// compile-time interface check
var _ EventSanitizerService = (*eventSanitizer)(nil)
