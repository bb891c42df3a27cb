// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MarkupDetector はクライアントから受け取ったテキスト項目にHTMLマークアップが
// 含まれるかを判定する。入力そのものは書き換えず、判定結果だけを返す。
// 判定にはbluemondayのStrictPolicyを使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MarkupDetectorService はテキスト入力のマークアップ判定機能のインターフェースを定義する。
type MarkupDetectorService interface {
	// ContainsMarkup はタグやコメントなど、HTMLとして解釈される要素を含むかを返す。
	// "&lt;b&gt;" のような文字参照や、単独の "<" "&" はテキストとして扱う。
	ContainsMarkup(raw string) bool
}

// markupDetector はMarkupDetectorServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type markupDetector struct {
	policy *bluemonday.Policy
}

// NewMarkupDetector はMarkupDetectorServiceの新しいインスタンスを生成する。
func NewMarkupDetector() *markupDetector {
	return &markupDetector{
		policy: bluemonday.StrictPolicy(),
	}
}

// newlines はトークナイザがテキスト中で正規化する改行コード。
var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ContainsMarkup はStrictPolicyで除去される要素があるかを返す。
// 除去前後のテキストをデコードして比較するため、エスケープ表現の違いは無視される。
func (d *markupDetector) ContainsMarkup(raw string) bool {
	if !strings.ContainsRune(raw, '<') {
		return false
	}
	text := newlines.Replace(raw)
	return html.UnescapeString(d.policy.Sanitize(text)) != html.UnescapeString(text)
}
