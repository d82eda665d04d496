// =============================================================================
// sources_rss.go - RSSフィードからの記事取得（フォールバック）
// =============================================================================
//
// 一覧ページの構造が変わって記事要素が見つからない場合、雑誌ごとの
// RSSフィード（journals.yaml の feed_url）から記事を取得します。
// gofeed ライブラリを使用してRSS/Atomフィードを解析します。
//
// 【RSSから取れる情報】
//   - タイトル、リンク、著者（dc:creator）、公開日、説明文
//   - 説明文は要旨として扱う（HTMLタグは除去）
//   - 記事種別はRSSに無いので Research Article とする
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// crawlFeed は雑誌のRSSフィードから記事を取得する
func (c *Crawler) crawlFeed(ctx context.Context, j JournalConfig) ([]Article, error) {
	if j.FeedURL == "" {
		return nil, fmt.Errorf("journal %s has no feed_url", j.Name)
	}
	feed, err := c.fetchRSSFeed(ctx, j.FeedURL)
	if err != nil {
		return nil, err
	}

	out := make([]Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if c.maxArticles > 0 && len(out) >= c.maxArticles {
			break
		}
		a, ok := c.articleFromFeedItem(item, j.Name)
		if !ok {
			continue
		}
		out = append(out, a)
	}
	debugf("%s: %d articles from RSS", j.Name, len(out))
	return out, nil
}

// fetchRSSFeed はフィードを取得して解析する
func (c *Crawler) fetchRSSFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := httpGet(ctx, c.client, feedURL, c.userAgent)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("RSS parse failed: %w", err)
	}
	return feed, nil
}

// articleFromFeedItem は gofeed.Item を Article に変換する
func (c *Crawler) articleFromFeedItem(item *gofeed.Item, journal string) (Article, bool) {
	title := normalizeWhitespace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return Article{}, false
	}
	link = resolveURL(c.baseURL, link)

	var authors []string
	for _, p := range item.Authors {
		if p != nil {
			authors = append(authors, normalizeWhitespace(p.Name))
		}
	}
	if len(authors) == 0 && item.DublinCoreExt != nil {
		authors = item.DublinCoreExt.Creator
	}

	published := c.now()
	switch {
	case item.PublishedParsed != nil:
		published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		published = *item.UpdatedParsed
	}

	doi := doiFromURL(link)
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Identifier) > 0 {
		doi = strings.TrimPrefix(item.DublinCoreExt.Identifier[0], "doi:")
	}

	return Article{
		Title:       title,
		Authors:     uniqStrings(authors),
		Journal:     journal,
		URL:         link,
		Abstract:    extractRSSExcerpt(item),
		PublishDate: published,
		ArticleType: ArticleTypeResearch,
		DOI:         doi,
		Keywords:    uniqStrings(item.Categories),
	}, true
}

// extractRSSExcerpt は gofeed.Item から Content/Description を優先取得して整形
//
// Content フィールドが空でなければ Content を、なければ Description を使用。
// HTMLタグを除去してトリム。
func extractRSSExcerpt(item *gofeed.Item) string {
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(cleanHTMLTags(raw))
}
