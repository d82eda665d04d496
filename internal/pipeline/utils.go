// =============================================================================
// utils.go - ユーティリティ関数
// =============================================================================
//
// このファイルはシステム全体で使用する汎用的なヘルパー関数を提供します。
//
// 【このファイルで提供する機能】
//   - ログ出力: infof / warnf / errorf / debugf（logrusで出力）
//   - 文字列操作: 重複削除、空白正規化、切り詰め
//   - JSON操作: ファイル書き込み
//   - HTTP操作: User-Agent付きGET、相対URL解決
//
// 【初心者向けポイント】
//   - ログは標準エラー出力に出す（標準出力は機械可読な出力用に空けておく）
//   - `...any`は可変長引数（任意の数の引数を受け取れる）
//
// =============================================================================
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mattn/go-runewidth"
	log "github.com/sirupsen/logrus"
)

// blockElements の後ろには空白を入れて、段落同士の単語がくっつかないようにする
const blockElements = "p, div, br, li, tr, td, th, blockquote, h1, h2, h3, h4, h5, h6"

// -----------------------------------------------------------------------------
// ログ出力関数
// -----------------------------------------------------------------------------

// SetupLogger はログレベルと出力形式を設定する
//
// level:  "debug" | "info" | "warn" | "error"（不正値はinfo）
// format: "json" ならJSON形式、それ以外はテキスト形式
func SetupLogger(level, format string) {
	log.SetOutput(os.Stderr)
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// infof は情報メッセージを出力する
func infof(format string, args ...any) {
	log.Infof(format, args...)
}

// warnf は警告メッセージを出力する
func warnf(format string, args ...any) {
	log.Warnf(format, args...)
}

// errorf はエラーメッセージを出力する
//
// 【注意】この関数はログ出力のみでプログラムは終了しない
func errorf(format string, args ...any) {
	log.Errorf(format, args...)
}

// debugf はデバッグメッセージを出力する（LOG_LEVEL=debug のときのみ）
func debugf(format string, args ...any) {
	log.Debugf(format, args...)
}

// -----------------------------------------------------------------------------
// 文字列操作関数
// -----------------------------------------------------------------------------

// normalizeWhitespace は文字列内の連続する空白を単一スペースに正規化する
//
//	normalizeWhitespace("  hello   world  ")  // "hello world"
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// uniqStrings は文字列スライスから重複と空文字列を除去する（順序は維持）
func uniqStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// truncateString は文字列を指定した文字数（rune数）に切り詰める
//
//	truncateString("Hello World", 8)  // "Hello..."
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// truncateWidth は表示幅（全角=2）で文字列を切り詰める
//
// ログの記事一覧で、日本語・中国語のタイトルでも列が揃うようにする。
func truncateWidth(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}

// cleanHTMLTags はHTML断片をテキストにする（script/style は捨て、エンティティはデコード）
func cleanHTMLTags(htmlStr string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return normalizeWhitespace(htmlStr)
	}
	doc.Find("script, style").Remove()
	doc.Find(blockElements).AfterHtml(" ")
	return normalizeWhitespace(doc.Text())
}

// -----------------------------------------------------------------------------
// JSON操作関数
// -----------------------------------------------------------------------------

// writeJSONFile は任意のデータをJSON形式（2スペースインデント）でファイルに保存する
func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// -----------------------------------------------------------------------------
// HTTP操作関数
// -----------------------------------------------------------------------------

// httpGet はUser-Agent付きのGETリクエストを実行し、本文を返す
//
// 200番台以外のステータスはエラーとして扱う。
func httpGet(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: status %s", rawURL, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// resolveURL は相対URLを絶対URLに変換する（エラー時は空文字列）
func resolveURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
