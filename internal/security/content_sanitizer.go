package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はフォーラムの投稿・コメント・説明文を保存前に無害化する。
type ContentSanitizerService interface {
	// Sanitize はリッチテキストエディタが出力するHTMLのうち安全な要素だけを残す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string

	// StripTags はすべてのタグを除去したテキストを返す。
	StripTags(raw string) string
}

// codeLanguageClass はコードブロックのシンタックスハイライト用クラス。
var codeLanguageClass = regexp.MustCompile(`^language-[A-Za-z0-9_+-]{1,32}$`)

// contentSanitizer はContentSanitizerServiceの実装。bluemondayのポリシーは並行利用できる。
type contentSanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はフォーラム用のポリシーを構築する。
//
// 許可する要素はエディタのStarterKitと画像拡張に対応する:
//   - p, br, hr, h1-h3, ul, ol, li, blockquote, pre, code, strong, em, s
//   - a（href、外部リンクにはtarget="_blank"とrel="nofollow noreferrer noopener"を付与）
//   - img（httpsのsrcとalt、title）
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "s",
	)
	p.AllowAttrs("class").Matching(codeLanguageClass).OnElements("code")

	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("https", "mailto")
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	p.AllowAttrs("src", "alt", "title").OnElements("img")

	return &contentSanitizer{
		rich:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLコンテンツをサニタイズする。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.rich.Sanitize(normalizeNewlines(rawHTML)))
}

// StripTags はタグを除去し、改行はそのまま残す。
func (s *contentSanitizer) StripTags(raw string) string {
	return strings.TrimSpace(s.plain.Sanitize(normalizeNewlines(raw)))
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
