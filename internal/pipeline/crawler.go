// =============================================================================
// crawler.go - 雑誌一覧ページのクロール
// =============================================================================
//
// このファイルは雑誌の一覧ページ（research-articles）から最新記事を抽出します。
// goquery ライブラリを使用してHTML構造から記事情報を抽出します。
//
// =============================================================================
// 【処理の流れ】
// =============================================================================
//
//  1. 一覧ページを取得（User-Agent付きGET）
//  2. 記事要素を探す（セレクタを順に試し、最初に見つかったものを採用）
//  3. 各要素からタイトル・URL・著者・日付・種別・要旨を抽出
//  4. 著者や要旨が一覧に無ければ記事詳細ページを1回だけ取得して補完
//  5. 一覧から何も取れなければRSSフィード（feed_url）にフォールバック
//  6. 最近N日（デフォルト7日）の記事のみ残す
//
// 1誌の失敗は CrawlResult{Success:false} で表現し、次の雑誌へ進む。
// リトライは行わない。
//
// =============================================================================
// 【セレクタのフォールバック】
// =============================================================================
//
// 優先度1: article[data-test="article"]
//     ↓
// 優先度2: .c-article-item
//     ↓
// 優先度3: .c-card
//     ↓
// 優先度4: [data-testid="article"]
//     ↓
// 優先度5: class に "article" を含む div
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// ErrNoArticlesFound は一覧ページ・RSSのどちらからも記事が取れなかったことを表す
var ErrNoArticlesFound = errors.New("no article elements found")

// articleSelectors は記事要素のセレクタ（先に見つかったものを採用）
var articleSelectors = []string{
	`article[data-test="article"]`,
	`.c-article-item`,
	`.c-card`,
	`[data-testid="article"]`,
}

// authorSelectors は著者名のセレクタ（全て試して結果を合算する）
var authorSelectors = []string{
	`a[data-test="author"]`,
	`a[class*="author"]`,
	`span[class*="author"]`,
	`.c-article-item__authors a`,
	`.c-article-item__authors span`,
	`[data-test="author"]`,
	`.c-article-authors a`,
	`.c-article-authors span`,
	`a[data-track-action="author"]`,
	`span[data-track-action="author"]`,
}

// authorBlacklist は著者セレクタに引っかかるが著者名ではない文字列
var authorBlacklist = map[string]bool{
	"Author notes":              true,
	"Search author on:":         true,
	"Google Scholar":            true,
	"View author publications":  true,
	"Reprints and permissions":  true,
	"Language editing services": true,
	"Guide to authors":          true,
	"Editorial policies":        true,
	"Nature portfolio policies": true,
	"Research data":             true,
	"Language editing":          true,
	"Scientific editing":        true,
	"Authors and Affiliations":  true,
	"Corresponding author":      true,
}

// abstractClassKeywords は要旨段落のclassに含まれるキーワード（優先順）
var abstractClassKeywords = []string{"abstract", "summary", "description", "content"}

const (
	maxDetailAuthors   = 10
	maxEtAlAuthors     = 3
	minAbstractLength  = 50
	maxFallbackExcerpt = 1000
)

// =============================================================================
// Crawler
// =============================================================================

// Crawler は雑誌一覧ページのクローラ
type Crawler struct {
	client      *http.Client
	userAgent   string
	baseURL     string
	maxArticles int
	recentDays  int
	delay       time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewCrawler はAppConfigからクローラを作成する
func NewCrawler(app AppConfig) *Crawler {
	timeout := app.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Crawler{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:   app.UserAgent,
		baseURL:     app.BaseURL,
		maxArticles: app.MaxArticlesPerJournal,
		recentDays:  app.RecentDays,
		delay:       app.CrawlDelay,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// sleepCtx はctxがキャンセルされるまでの範囲でd待機する
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// CrawlAllJournals は有効な雑誌を順番にクロールする
//
// 雑誌の間には固定の待機時間（CRAWL_DELAY）を入れる。
func (c *Crawler) CrawlAllJournals(ctx context.Context, journals []JournalConfig) []CrawlResult {
	results := make([]CrawlResult, 0, len(journals))
	for _, j := range journals {
		if !j.Enabled {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		results = append(results, c.CrawlJournal(ctx, j))
		c.sleep(ctx, c.delay)
	}
	return results
}

// CrawlJournal は1誌をクロールする
//
// 取得・解析に失敗した場合も panic せず、Success=false の結果を返す。
func (c *Crawler) CrawlJournal(ctx context.Context, j JournalConfig) CrawlResult {
	infof("crawling journal: %s", j.Name)
	result := CrawlResult{Journal: j.Name, Articles: []Article{}, CrawlTime: c.now()}

	articles, err := c.collect(ctx, j)
	if err != nil {
		errorf("crawling %s failed: %v", j.Name, err)
		result.ErrorMessage = err.Error()
		return result
	}

	for i := range articles {
		tagJournalKeywords(&articles[i], j.Keywords)
	}
	result.Articles = FilterRecentArticles(articles, c.now(), c.recentDays)
	result.Success = true
	infof("journal %s: %d recent articles (%d parsed)", j.Name, len(result.Articles), len(articles))
	return result
}

// collect は一覧ページから記事を集め、取れなければRSSにフォールバックする
func (c *Crawler) collect(ctx context.Context, j JournalConfig) ([]Article, error) {
	var listingErr error
	if j.URL != "" {
		articles, err := c.crawlListing(ctx, j)
		if err == nil && len(articles) > 0 {
			return articles, nil
		}
		listingErr = err
		if listingErr == nil {
			listingErr = ErrNoArticlesFound
		}
		if j.FeedURL == "" {
			return nil, listingErr
		}
		warnf("%s: listing page gave no articles (%v), falling back to RSS", j.Name, listingErr)
	}

	articles, err := c.crawlFeed(ctx, j)
	if err != nil {
		if listingErr != nil {
			return nil, fmt.Errorf("listing: %v; feed: %w", listingErr, err)
		}
		return nil, err
	}
	if len(articles) == 0 {
		return nil, ErrNoArticlesFound
	}
	return articles, nil
}

// crawlListing は一覧ページ（HTML）から記事を抽出する
func (c *Crawler) crawlListing(ctx context.Context, j JournalConfig) ([]Article, error) {
	body, err := httpGet(ctx, c.client, j.URL, c.userAgent)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML failed: %w", err)
	}

	elements := findArticleElements(doc)
	debugf("%s: %d article elements on listing page", j.Name, elements.Length())

	out := make([]Article, 0, c.maxArticles)
	elements.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if c.maxArticles > 0 && i >= c.maxArticles {
			return false
		}
		a, ok := c.parseArticleElement(ctx, s, j.Name)
		if !ok {
			debugf("%s: skipped element %d (no title or link)", j.Name, i)
			return true
		}
		out = append(out, a)
		return true
	})
	return out, nil
}

// findArticleElements はセレクタを順に試し、最初に見つかった記事要素を返す
func findArticleElements(doc *goquery.Document) *goquery.Selection {
	for _, sel := range articleSelectors {
		found := doc.Find(sel)
		if found.Length() > 0 {
			return found
		}
	}
	// class に "article" を含む div
	return doc.Find("div[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return strings.Contains(strings.ToLower(class), "article")
	})
}

// =============================================================================
// 記事要素の解析
// =============================================================================

// parseArticleElement は1つの記事要素から Article を組み立てる
//
// タイトルかリンクが取れない要素は ok=false を返す。
func (c *Crawler) parseArticleElement(ctx context.Context, s *goquery.Selection, journal string) (Article, bool) {
	title := extractTitle(s)
	if title == "" {
		return Article{}, false
	}

	href, exists := s.Find("a[href]").First().Attr("href")
	if !exists || strings.TrimSpace(href) == "" {
		return Article{}, false
	}
	articleURL := resolveURL(c.baseURL, href)
	if articleURL == "" {
		return Article{}, false
	}

	a := Article{
		Title:       title,
		Authors:     extractAuthors(s),
		Journal:     journal,
		URL:         articleURL,
		Abstract:    extractAbstract(s),
		PublishDate: c.extractDate(s),
		ArticleType: extractArticleType(s),
		DOI:         doiFromURL(articleURL),
	}

	// 一覧で足りない情報は詳細ページから1回だけ取得して補完
	if len(a.Authors) == 0 || a.Abstract == "" {
		c.enrichFromDetailPage(ctx, &a)
	}
	return a, true
}

// extractTitle は h3 → h2 → h1 → class に title を含む a の順でタイトルを探す
func extractTitle(s *goquery.Selection) string {
	for _, tag := range []string{"h3", "h2", "h1"} {
		if h := s.Find(tag).First(); h.Length() > 0 {
			if t := normalizeWhitespace(h.Text()); t != "" {
				return t
			}
		}
	}
	var title string
	s.Find("a[class]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		class, _ := a.Attr("class")
		if strings.Contains(strings.ToLower(class), "title") {
			title = normalizeWhitespace(a.Text())
			return title == ""
		}
		return true
	})
	return title
}

// extractAuthors は著者セレクタを全て試して著者名を集める
//
// 見つからない場合、要素テキストの "et al." より前をカンマで分割し、
// 先頭3名を著者とみなす。
func extractAuthors(s *goquery.Selection) []string {
	authors := authorsFromSelectors(s)
	if len(authors) > 0 {
		return authors
	}

	text := s.Text()
	idx := strings.Index(text, "et al.")
	if idx < 0 {
		return nil
	}
	var out []string
	for _, name := range strings.Split(text[:idx], ",") {
		name = normalizeWhitespace(name)
		if name == "" {
			continue
		}
		out = append(out, name)
		if len(out) >= maxEtAlAuthors {
			break
		}
	}
	return out
}

// authorsFromSelectors は authorSelectors に一致する要素のテキストを集める
func authorsFromSelectors(s *goquery.Selection) []string {
	seen := map[string]bool{}
	var authors []string
	for _, sel := range authorSelectors {
		s.Find(sel).Each(func(_ int, e *goquery.Selection) {
			name := normalizeWhitespace(e.Text())
			if len([]rune(name)) <= 2 || seen[name] || authorBlacklist[name] {
				return
			}
			seen[name] = true
			authors = append(authors, name)
		})
	}
	return authors
}

// extractDate は time 要素か class に date を含む span から公開日を読む
//
// 見つからない・解析できない場合は現在時刻を返す。
func (c *Crawler) extractDate(s *goquery.Selection) time.Time {
	dateElem := s.Find("time").First()
	if dateElem.Length() == 0 {
		dateElem = s.Find("span[class]").FilterFunction(func(_ int, e *goquery.Selection) bool {
			class, _ := e.Attr("class")
			return strings.Contains(strings.ToLower(class), "date")
		}).First()
	}
	if dateElem.Length() == 0 {
		return c.now()
	}

	raw, _ := dateElem.Attr("datetime")
	if strings.TrimSpace(raw) == "" {
		raw = dateElem.Text()
	}
	if t, ok := parseDate(raw); ok {
		return t
	}
	debugf("cannot parse date %q, using now", raw)
	return c.now()
}

// parseDate は一覧ページの日付表記を解析する
//
// "2026-10-19", "2026-10-19T08:00:00Z", "19 Oct 2026" などに対応。
// 日付のみの表記はローカル時刻の0時として扱う。
func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := dateparse.ParseLocal(raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// extractArticleType は class に type を含む span から記事種別を判定する
func extractArticleType(s *goquery.Selection) ArticleType {
	typeElem := s.Find("span[class]").FilterFunction(func(_ int, e *goquery.Selection) bool {
		class, _ := e.Attr("class")
		return strings.Contains(strings.ToLower(class), "type")
	}).First()
	if typeElem.Length() == 0 {
		return ArticleTypeResearch
	}
	return ParseArticleType(typeElem.Text())
}

// extractAbstract は要旨らしい段落を探す
//
// 優先度1: class に abstract / summary / description / content を含む p
// 優先度2: 50文字より長い最初の p
func extractAbstract(s *goquery.Selection) string {
	paragraphs := s.Find("p")
	for _, kw := range abstractClassKeywords {
		var found string
		paragraphs.EachWithBreak(func(_ int, p *goquery.Selection) bool {
			class, _ := p.Attr("class")
			if !strings.Contains(strings.ToLower(class), kw) {
				return true
			}
			found = normalizeWhitespace(p.Text())
			return found == ""
		})
		if found != "" {
			return found
		}
	}

	var abstract string
	paragraphs.EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := normalizeWhitespace(p.Text())
		if len([]rune(text)) > minAbstractLength {
			abstract = text
			return false
		}
		return true
	})
	return abstract
}

// doiFromURL は nature.com の記事URLからDOIを推定する
//
//	"https://www.nature.com/articles/s41586-024-07000-1" → "10.1038/s41586-024-07000-1"
func doiFromURL(articleURL string) string {
	const marker = "nature.com/articles/"
	idx := strings.Index(articleURL, marker)
	if idx < 0 {
		return ""
	}
	id := articleURL[idx+len(marker):]
	if cut := strings.IndexAny(id, "?#/"); cut >= 0 {
		id = id[:cut]
	}
	if id == "" {
		return ""
	}
	return "10.1038/" + id
}

// tagJournalKeywords は雑誌のキーワードヒントのうち、タイトルか要旨に
// 現れるものを記事の Keywords に追加する
func tagJournalKeywords(a *Article, hints []string) {
	text := strings.ToLower(a.Title + " " + a.Abstract)
	for _, h := range hints {
		if h != "" && strings.Contains(text, strings.ToLower(h)) {
			a.Keywords = append(a.Keywords, h)
		}
	}
	a.Keywords = uniqStrings(a.Keywords)
}

// =============================================================================
// フィルタ
// =============================================================================

// FilterRecentArticles は now から days 日以内に公開された記事のみを残す
//
// days が0以下の場合はフィルタしない。
func FilterRecentArticles(articles []Article, now time.Time, days int) []Article {
	if days <= 0 {
		return articles
	}
	cutoff := now.AddDate(0, 0, -days)
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if !a.PublishDate.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

// FilterArticlesByDate は day と同じ暦日に公開された記事のみを残す
//
// 暦日の比較は day のタイムゾーンで行う。
func FilterArticlesByDate(articles []Article, day time.Time) []Article {
	y, m, d := day.Date()
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		ay, am, ad := a.PublishDate.In(day.Location()).Date()
		if ay == y && am == m && ad == d {
			out = append(out, a)
		}
	}
	return out
}
