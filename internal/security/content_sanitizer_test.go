package security

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name    string
		input   string
		want    []string
		notWant []string
	}{
		{
			name:  "エディタの基本要素を残す",
			input: "<h2>パッチノート</h2><p><strong>SMG</strong>が<em>強化</em>、<s>旧仕様</s></p><hr><ul><li>反動</li></ul><ol><li>射程</li></ol>",
			want:  []string{"<h2>パッチノート</h2>", "<strong>SMG</strong>", "<em>強化</em>", "<s>旧仕様</s>", "<hr", "<ul><li>反動</li></ul>", "<ol><li>射程</li></ol>"},
		},
		{
			name:  "引用とコードブロック",
			input: `<blockquote>GG</blockquote><pre><code class="language-go">func main() {}</code></pre>`,
			want:  []string{"<blockquote>GG</blockquote>", `<code class="language-go">func main() {}</code>`},
		},
		{
			name:    "コードの任意クラスは除去",
			input:   `<code class="evil onload">x</code>`,
			want:    []string{"<code>x</code>"},
			notWant: []string{"evil"},
		},
		{
			name:    "script・iframe・styleを除去",
			input:   `<p>本文</p><script>alert(1)</script><iframe src="https://evil.example"></iframe><style>p{}</style>`,
			want:    []string{"<p>本文</p>"},
			notWant: []string{"<script", "alert", "<iframe", "<style"},
		},
		{
			name:    "イベント属性を除去",
			input:   `<p onclick="alert(1)">click</p><img src="https://cdn.example.com/a.png" onerror="alert(2)">`,
			want:    []string{"<p>click</p>", `src="https://cdn.example.com/a.png"`},
			notWant: []string{"onclick", "onerror", "alert"},
		},
		{
			name:    "画像はhttpsのみ",
			input:   `<img src="http://cdn.example.com/a.png"><img src="data:image/png;base64,AAAA"><img src="https://cdn.example.com/b.png" alt="boss" title="raid">`,
			want:    []string{`src="https://cdn.example.com/b.png"`, `alt="boss"`, `title="raid"`},
			notWant: []string{"http://cdn.example.com", "data:image"},
		},
		{
			name:    "javascriptスキームのリンクはhrefを除去",
			input:   `<a href="javascript:alert(1)">x</a>`,
			notWant: []string{"javascript"},
		},
		{
			name:    "外部リンクにnofollowと新規タブを付与",
			input:   `<a href="https://pulse.example.com/guide" target="_self" rel="opener">guide</a>`,
			want:    []string{`href="https://pulse.example.com/guide"`, "nofollow", "noreferrer", "noopener", `target="_blank"`},
			notWant: []string{"_self", `"opener"`},
		},
		{
			name:    "相対リンクは許可しない",
			input:   `<a href="/admin">admin</a>`,
			want:    []string{"admin"},
			notWant: []string{`href="/admin"`},
		},
		{
			name:  "プレーンテキストはそのまま",
			input: "ランク戦で勝つ方法",
			want:  []string{"ランク戦で勝つ方法"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(got, nw) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, nw)
				}
			}
		})
	}
}

func TestSanitize_EmptyAndIdempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
	if got := sanitizer.Sanitize("<script>x</script>"); got != "" {
		t.Errorf("script only input should sanitize to empty, got %q", got)
	}

	input := `<p>Use the <a href="https://example.com">tier list</a></p><img src="https://cdn.example.com/t.png">`
	once := sanitizer.Sanitize(input)
	if twice := sanitizer.Sanitize(once); twice != once {
		t.Errorf("Sanitize is not idempotent:\n once  = %q\n twice = %q", once, twice)
	}
}

func TestStripTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"<b>Best</b> loadout", "Best loadout"},
		{"  <i>short</i> summary  ", "short summary"},
		{"line1\r\nline2", "line1\nline2"},
		{"<script>alert(1)</script>", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizer.StripTags(tt.input); got != tt.want {
			t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}
