// =============================================================================
// detail.go - 記事詳細ページからの補完
// =============================================================================
//
// 一覧ページに著者や要旨が載っていない記事について、詳細ページを
// 1回だけ取得して情報を補完します。
//
// 【補完の優先順位】
//
//	著者: 著者セレクタ → <meta name="citation_author">（最大10名）
//	要旨: #Abs1-content p → <meta name="description">
//	      → go-readability による本文抽出（先頭1000文字）
//	      → citation_pdf_url のPDF本文（先頭1000文字）
//	DOI:  <meta name="citation_doi">
//
// 取得に失敗しても記事自体は捨てない（警告ログのみ）。
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

var errEmptyPDFContent = errors.New("empty PDF content")

// enrichFromDetailPage は詳細ページから著者・要旨・DOIを補完する
func (c *Crawler) enrichFromDetailPage(ctx context.Context, a *Article) {
	body, err := httpGet(ctx, c.client, a.URL, c.userAgent)
	if err != nil {
		warnf("fetching article page failed %s: %v", a.URL, err)
		return
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		warnf("parsing article page failed %s: %v", a.URL, err)
		return
	}

	if len(a.Authors) == 0 {
		a.Authors = authorsFromDetail(doc)
	}
	if doi := strings.TrimSpace(metaContent(doc, "citation_doi")); doi != "" {
		a.DOI = strings.TrimPrefix(doi, "doi:")
	}
	if len(a.Keywords) == 0 {
		a.Keywords = metaList(doc, "citation_keywords")
	}
	if a.Abstract != "" {
		return
	}

	a.Abstract = abstractFromDetail(doc)
	if a.Abstract == "" {
		a.Abstract = readableExcerpt(body, a.URL)
		if a.Abstract != "" {
			a.ContentPreview = a.Abstract
		}
	}
	if a.Abstract == "" {
		if pdfURL := metaContent(doc, "citation_pdf_url"); pdfURL != "" {
			a.Abstract = c.pdfExcerpt(ctx, resolveURL(a.URL, pdfURL))
			a.ContentPreview = a.Abstract
		}
	}
}

// authorsFromDetail は詳細ページから著者を最大10名取得する
func authorsFromDetail(doc *goquery.Document) []string {
	authors := authorsFromSelectors(doc.Selection)
	if len(authors) == 0 {
		authors = metaList(doc, "citation_author")
	}
	if len(authors) > maxDetailAuthors {
		authors = authors[:maxDetailAuthors]
	}
	return authors
}

// abstractFromDetail は詳細ページの Abstract セクションを読む
func abstractFromDetail(doc *goquery.Document) string {
	var parts []string
	doc.Find("#Abs1-content p").Each(func(_ int, p *goquery.Selection) {
		if t := normalizeWhitespace(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	for _, name := range []string{"dc.description", "description"} {
		if d := normalizeWhitespace(metaContent(doc, name)); len([]rune(d)) > minAbstractLength {
			return d
		}
	}
	return ""
}

// metaContent は <meta name="..."> の content を返す
func metaContent(doc *goquery.Document, name string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).First().Attr("content")
	return content
}

// metaList は同名の <meta> を全て集める
func metaList(doc *goquery.Document, name string) []string {
	var out []string
	doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).Each(func(_ int, m *goquery.Selection) {
		if v, ok := m.Attr("content"); ok {
			out = append(out, normalizeWhitespace(v))
		}
	})
	return uniqStrings(out)
}

// readableExcerpt は go-readability で本文を抽出し、先頭1000文字を返す
func readableExcerpt(body []byte, pageURL string) string {
	u, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		debugf("readability failed for %s: %v", pageURL, err)
		return ""
	}
	text := normalizeWhitespace(article.TextContent)
	if text == "" {
		return ""
	}
	return truncateString(text, maxFallbackExcerpt)
}

// pdfExcerpt はPDFを取得して本文の先頭1000文字を返す
func (c *Crawler) pdfExcerpt(ctx context.Context, pdfURL string) string {
	if pdfURL == "" {
		return ""
	}
	data, err := httpGet(ctx, c.client, pdfURL, c.userAgent)
	if err != nil {
		warnf("fetching PDF failed %s: %v", pdfURL, err)
		return ""
	}
	text, err := extractPDFText(data)
	if err != nil {
		warnf("extracting PDF text failed %s: %v", pdfURL, err)
		return ""
	}
	return truncateString(normalizeWhitespace(text), maxFallbackExcerpt)
}

// extractPDFText はPDFのバイト列からプレーンテキストを取り出す
func extractPDFText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errEmptyPDFContent
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", err
	}
	return buf.String(), nil
}
