// =============================================================================
// report.go - 日報の生成と保存
// =============================================================================
//
// 分析済みの記事から DailyReport を組み立て、Markdown / HTML / JSON として
// 出力ディレクトリに保存します。
//
// 【テンプレート】
//   - templates/report.md.tmpl   … text/template（Markdown）
//   - templates/report.html.tmpl … html/template（自動エスケープ）
//
// どちらもバイナリに埋め込まれている。TEMPLATE_DIR に同名ファイルがあれば
// そちらを優先する。テンプレートの解析・実行に失敗した場合は
// 組み込みの簡易レンダリングにフォールバックする。
//
// 【出力ファイル名】
//
//	{OUTPUT_DIR}/nature_daily_report_YYYYMMDD.md
//	{OUTPUT_DIR}/nature_daily_report_YYYYMMDD.html
//	{OUTPUT_DIR}/nature_daily_report_YYYYMMDD.json
//
// =============================================================================
package pipeline

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

const (
	markdownTemplateName = "report.md.tmpl"
	htmlTemplateName     = "report.html.tmpl"
	reportFilePrefix     = "nature_daily_report_"
)

// 出力形式
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
	FormatAll      = "all"
)

// ReportGenerator は日報の組み立てとレンダリングを行う
type ReportGenerator struct {
	title        string
	outputDir    string
	outputFormat string
	templateDir  string
	now          func() time.Time
}

// NewReportGenerator はAppConfigからReportGeneratorを作成する
func NewReportGenerator(app AppConfig) *ReportGenerator {
	title := app.ReportTitle
	if title == "" {
		title = DefaultReportTitle
	}
	format := strings.ToLower(app.OutputFormat)
	if format == "" {
		format = FormatAll
	}
	return &ReportGenerator{
		title:        title,
		outputDir:    app.OutputDir,
		outputFormat: format,
		templateDir:  app.TemplateDir,
		now:          time.Now,
	}
}

// GenerateDailyReport は記事リストから日報を作成する
//
// title が空の場合は設定のタイトルを使う。
func (g *ReportGenerator) GenerateDailyReport(articles []Article, title string, date time.Time) *DailyReport {
	if title == "" {
		title = g.title
	}
	r := NewDailyReport(title, date)
	for _, a := range articles {
		r.AddArticle(a)
	}
	return r
}

// =============================================================================
// レンダリング
// =============================================================================

// journalSection はテンプレート用の雑誌ごとの記事グループ
type journalSection struct {
	Name     string
	Articles []Article
}

// reportView はテンプレートに渡すデータ
type reportView struct {
	Report      *DailyReport
	Journals    []journalSection
	FieldStats  []FieldStat
	GeneratedAt string
}

func (g *ReportGenerator) view(r *DailyReport) reportView {
	v := reportView{
		Report:      r,
		FieldStats:  r.FieldStats(),
		GeneratedAt: g.now().Format("2006-01-02 15:04:05"),
	}
	for _, j := range r.JournalsCovered {
		v.Journals = append(v.Journals, journalSection{Name: j, Articles: r.ArticlesByJournal(j)})
	}
	return v
}

// templateFuncs はMarkdown・HTML共通のテンプレート関数
func templateFuncs() map[string]any {
	return map[string]any{
		"join": strings.Join,
		"formatDate": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
		"hasKeyPoints": func(points []string) bool {
			return len(points) > 0 && !strings.HasPrefix(points[0], KeyPointsFailed)
		},
		"fieldSummary": func(r *DailyReport, f ResearchField) string {
			return r.FieldSummaries[f]
		},
	}
}

// loadTemplateSource は TEMPLATE_DIR の上書きファイル、なければ埋め込み版を読む
func (g *ReportGenerator) loadTemplateSource(name string) (string, error) {
	if g.templateDir != "" {
		b, err := os.ReadFile(filepath.Join(g.templateDir, name))
		if err == nil {
			debugf("using template override %s", filepath.Join(g.templateDir, name))
			return string(b), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	b, err := embeddedTemplates.ReadFile("templates/" + name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RenderMarkdown は日報をMarkdownにレンダリングする
func (g *ReportGenerator) RenderMarkdown(r *DailyReport) string {
	out, err := g.renderMarkdownTemplate(r)
	if err != nil {
		errorf("markdown report rendering failed: %v", err)
		return fallbackMarkdown(r)
	}
	return out
}

func (g *ReportGenerator) renderMarkdownTemplate(r *DailyReport) (string, error) {
	src, err := g.loadTemplateSource(markdownTemplateName)
	if err != nil {
		return "", err
	}
	tmpl, err := texttemplate.New(markdownTemplateName).Funcs(templateFuncs()).Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, g.view(r)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderHTML は日報をHTMLにレンダリングする
func (g *ReportGenerator) RenderHTML(r *DailyReport) string {
	out, err := g.renderHTMLTemplate(r)
	if err != nil {
		errorf("HTML report rendering failed: %v", err)
		return fallbackHTML(r)
	}
	return out
}

func (g *ReportGenerator) renderHTMLTemplate(r *DailyReport) (string, error) {
	src, err := g.loadTemplateSource(htmlTemplateName)
	if err != nil {
		return "", err
	}
	tmpl, err := htmltemplate.New(htmlTemplateName).Funcs(templateFuncs()).Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, g.view(r)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackMarkdown はテンプレートを使わない簡易Markdown
func fallbackMarkdown(r *DailyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s - %s\n\n", r.Title, r.DateLabel())
	fmt.Fprintf(&b, "Total articles: %d\n\n", r.TotalArticles)
	for _, a := range r.Articles {
		fmt.Fprintf(&b, "## %s\n", a.Title)
		fmt.Fprintf(&b, "- Journal: %s\n", a.Journal)
		fmt.Fprintf(&b, "- Authors: %s\n", a.AuthorsLine())
		fmt.Fprintf(&b, "- Link: %s\n", a.URL)
		if a.Summary != "" {
			fmt.Fprintf(&b, "- Summary: %s\n", a.Summary)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// fallbackHTML はテンプレートを使わない簡易HTML
func fallbackHTML(r *DailyReport) string {
	esc := htmltemplate.HTMLEscapeString
	var b strings.Builder
	title := esc(r.Title) + " - " + r.DateLabel()
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n<head>\n    <meta charset=\"UTF-8\">\n    <title>%s</title>\n</head>\n<body>\n", title)
	fmt.Fprintf(&b, "    <h1>%s</h1>\n    <p>Total articles: %d</p>\n", title, r.TotalArticles)
	for _, a := range r.Articles {
		fmt.Fprintf(&b, "    <h2>%s</h2>\n", esc(a.Title))
		fmt.Fprintf(&b, "    <p>Journal: %s</p>\n", esc(a.Journal))
		fmt.Fprintf(&b, "    <p>Authors: %s</p>\n", esc(a.AuthorsLine()))
		fmt.Fprintf(&b, "    <p><a href=\"%s\">Original article</a></p>\n", esc(a.URL))
		if a.Summary != "" {
			fmt.Fprintf(&b, "    <p>Summary: %s</p>\n", esc(a.Summary))
		}
	}
	b.WriteString("</body></html>")
	return b.String()
}

// =============================================================================
// 保存
// =============================================================================

// ReportFileName は日付と拡張子から出力ファイル名を作る
//
//	ReportFileName(2026-10-19, "md")  // "nature_daily_report_20261019.md"
func ReportFileName(date time.Time, ext string) string {
	return reportFilePrefix + date.Format("20060102") + "." + ext
}

// SaveReport は出力形式の設定に従って日報をファイルに保存する
//
// targetDate が指定されていればファイル名にその日付を使う（なければ日報の日付）。
// 戻り値は形式名（"markdown" / "html" / "json"）→ ファイルパス。
// 途中で失敗した場合も、それまでに保存したファイルは返す。
func (g *ReportGenerator) SaveReport(r *DailyReport, targetDate *time.Time) (map[string]string, error) {
	files := map[string]string{}
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return files, fmt.Errorf("create output dir: %w", err)
	}

	date := r.Date
	if targetDate != nil {
		date = *targetDate
	}

	if g.wants(FormatMarkdown) {
		path := filepath.Join(g.outputDir, ReportFileName(date, "md"))
		if err := os.WriteFile(path, []byte(g.RenderMarkdown(r)), 0o644); err != nil {
			return files, fmt.Errorf("write markdown report: %w", err)
		}
		files[FormatMarkdown] = path
	}
	if g.wants(FormatHTML) {
		path := filepath.Join(g.outputDir, ReportFileName(date, "html"))
		if err := os.WriteFile(path, []byte(g.RenderHTML(r)), 0o644); err != nil {
			return files, fmt.Errorf("write HTML report: %w", err)
		}
		files[FormatHTML] = path
	}
	if g.wants(FormatJSON) {
		path := filepath.Join(g.outputDir, ReportFileName(date, "json"))
		if err := writeJSONFile(path, r); err != nil {
			return files, fmt.Errorf("write JSON report: %w", err)
		}
		files[FormatJSON] = path
	}

	infof("report saved to %s (format=%s, files=%d)", g.outputDir, g.outputFormat, len(files))
	return files, nil
}

func (g *ReportGenerator) wants(format string) bool {
	return g.outputFormat == FormatAll || g.outputFormat == format
}
