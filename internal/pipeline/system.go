// =============================================================================
// system.go - 日報システム全体の実行
// =============================================================================
//
// クローラ・要約・レポート生成・メール送信・Notionアーカイブを
// 1本のパイプラインとしてつなぎます。
//
// =============================================================================
// 【RunDailyReport の流れ】
// =============================================================================
//
//	ステップ1: 有効な雑誌を順番にクロール（雑誌の間に CRAWL_DELAY）
//	ステップ2: 対象日（-date、未指定なら今日）に公開された記事に絞る
//	           → 0件なら false を返して終了
//	ステップ3: 記事ごとにAI要約・キーポイント・研究分野（記事の間に ANALYZE_DELAY）
//	ステップ4: 研究分野ごとの動向まとめ
//	ステップ5: 日報を組み立てて Markdown / HTML / JSON を保存
//	ステップ6: Notionにアーカイブ（-notionClip 指定時のみ）
//	ステップ7: メール送信（ENABLE_EMAIL_SENDING かつ設定が有効な場合）
//
// メール送信やNotion保存の失敗は run の成否に影響しない（ログのみ）。
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// ReportSystem は日報システム
type ReportSystem struct {
	cfg        *Config
	crawler    *Crawler
	summarizer *Summarizer
	generator  *ReportGenerator
	sender     *EmailSender
	clipper    *NotionClipper
	now        func() time.Time
}

// NewReportSystem は設定から各コンポーネントを組み立てる
func NewReportSystem(cfg *Config) *ReportSystem {
	infof("initializing report system (%d journals enabled)", len(cfg.EnabledJournals()))
	return &ReportSystem{
		cfg:        cfg,
		crawler:    NewCrawler(cfg.App),
		summarizer: NewSummarizer(cfg.AI, cfg.App.AnalyzeDelay),
		generator:  NewReportGenerator(cfg.App),
		sender:     NewEmailSender(cfg.Email),
		now:        time.Now,
	}
}

// EnableNotion はNotionアーカイブを有効にする
func (s *ReportSystem) EnableNotion(ctx context.Context) error {
	nc, err := NewNotionClipper(s.cfg.Notion)
	if err != nil {
		return err
	}
	journals := make([]string, 0, len(s.cfg.Journals))
	for _, j := range s.cfg.Journals {
		journals = append(journals, j.Name)
	}
	if err := nc.EnsureDatabase(ctx, s.cfg.Notion.PageID, journals); err != nil {
		return err
	}
	s.clipper = nc
	infof("Notion archive enabled (database %s)", nc.DatabaseID())
	return nil
}

// ErrNoArticlesForDate は対象日に公開された記事が無いことを表す
var ErrNoArticlesForDate = errors.New("no articles published on the target date")

// RunResult は1回の日報生成の結果
type RunResult struct {
	Report    *DailyReport
	Files     map[string]string
	Crawled   int
	EmailSent bool
	Clipped   int
}

// RunDailyReport は日報を1回生成する
//
// targetDate が nil の場合は今日の記事を対象にする。
// 対象記事が無い場合、またはレポートの保存に失敗した場合は false を返す。
func (s *ReportSystem) RunDailyReport(ctx context.Context, targetDate *time.Time) bool {
	if _, err := s.Run(ctx, targetDate); err != nil {
		if errors.Is(err, ErrNoArticlesForDate) {
			warnf("%v, skipping", err)
		} else {
			errorf("daily report failed: %v", err)
		}
		return false
	}
	return true
}

// Run は日報を1回生成し、結果を返す
func (s *ReportSystem) Run(ctx context.Context, targetDate *time.Time) (*RunResult, error) {
	day := s.now()
	if targetDate != nil {
		day = *targetDate
	}
	infof("generating daily report for %s", day.Format("2006-01-02"))

	// ステップ1: クロール
	infof("step 1: crawling journals")
	results := s.crawler.CrawlAllJournals(ctx, s.cfg.EnabledJournals())
	var crawled []Article
	for _, r := range results {
		if !r.Success {
			errorf("journal %s: crawl failed - %s", r.Journal, r.ErrorMessage)
			continue
		}
		infof("journal %s: %d articles", r.Journal, len(r.Articles))
		crawled = append(crawled, r.Articles...)
	}
	result := &RunResult{Crawled: len(crawled), Files: map[string]string{}}

	// ステップ2: 対象日に絞る
	articles := FilterArticlesByDate(crawled, day)
	if len(articles) == 0 {
		return result, fmt.Errorf("%w: %s (crawled %d)", ErrNoArticlesForDate, day.Format("2006-01-02"), len(crawled))
	}
	infof("%d articles published on %s (crawled %d)", len(articles), day.Format("2006-01-02"), len(crawled))

	// ステップ3: AI分析
	infof("step 2: analyzing articles")
	analyzed := s.summarizer.AnalyzeArticlesBatch(ctx, articles)

	// ステップ4〜5: 日報生成・保存
	infof("step 3: building report")
	report := s.generator.GenerateDailyReport(analyzed, "", day)
	for _, st := range report.FieldStats() {
		if st.Field == FieldOther {
			continue
		}
		report.SetFieldSummary(st.Field, s.summarizer.GenerateFieldSummary(ctx, report.Articles, st.Field))
	}
	result.Report = report
	logArticleTable(report.Articles)

	infof("step 4: saving report files")
	files, err := s.generator.SaveReport(report, targetDate)
	result.Files = files
	if err != nil {
		return result, fmt.Errorf("saving report: %w", err)
	}
	for format, path := range files {
		infof("saved %s: %s", format, path)
	}

	// ステップ6: Notion
	if s.clipper != nil {
		result.Clipped = s.clipper.ClipArticles(ctx, report.Articles)
	}

	// ステップ7: メール
	result.EmailSent = s.sendReportEmail(report, files)

	infof("daily report completed: %s", report)
	return result, nil
}

// sendReportEmail は設定に応じて日報メールを送信する
func (s *ReportSystem) sendReportEmail(report *DailyReport, files map[string]string) bool {
	if !s.cfg.App.EnableEmailSending {
		infof("email sending is disabled, skipping")
		return false
	}
	if !s.sender.ValidateConfig() {
		warnf("email configuration is invalid, skipping email")
		return false
	}

	infof("step 5: sending email")
	var attachments []string
	for _, format := range []string{FormatMarkdown, FormatJSON} {
		if path, ok := files[format]; ok {
			attachments = append(attachments, path)
		}
	}
	subject := fmt.Sprintf("%s - %s", report.Title, report.DateLabel())
	if !s.sender.SendDailyReport(s.generator.RenderHTML(report), s.generator.RenderMarkdown(report), subject, attachments) {
		errorf("report email failed")
		return false
	}
	infof("report email sent")
	return true
}

// RunTest はメール設定と最初の雑誌のクロールを確認する
//
// 両方成功した場合に true を返す。
func (s *ReportSystem) RunTest(ctx context.Context) bool {
	infof("running system test")
	ok := true

	if s.sender.ValidateConfig() {
		infof("email configuration is valid")
		if s.sender.SendTestEmail("") {
			infof("test email sent")
		} else {
			errorf("test email failed")
			ok = false
		}
	} else {
		errorf("email configuration is invalid")
		ok = false
	}

	journals := s.cfg.EnabledJournals()
	if len(journals) == 0 {
		errorf("crawler test skipped: %v", ErrNoEnabledJournals)
		return false
	}
	infof("testing crawler with %s", journals[0].Name)
	result := s.crawler.CrawlJournal(ctx, journals[0])
	if result.Success {
		infof("crawler test succeeded: %d articles", len(result.Articles))
	} else {
		errorf("crawler test failed: %s", result.ErrorMessage)
		ok = false
	}

	infof("system test finished (ok=%v)", ok)
	return ok
}

// ScheduleDaily は CRAWL_TIME に毎日 RunDailyReport を実行する
//
// ctx がキャンセルされるまで戻らない。
func (s *ReportSystem) ScheduleDaily(ctx context.Context) error {
	sched, err := NewScheduler(s.cfg.App.CrawlTime, func(ctx context.Context) {
		s.RunDailyReport(ctx, nil)
	})
	if err != nil {
		return err
	}
	sched.Run(ctx)
	return nil
}

// logArticleTable は分析結果を「分野 | タイトル」の一覧でログに出す
//
// タイトルは表示幅で揃える（日本語・中国語のタイトルでも崩れない）。
func logArticleTable(articles []Article) {
	const fieldWidth, titleWidth = 24, 70
	for _, a := range articles {
		field := string(a.ResearchField)
		if field == "" {
			field = "-"
		}
		debugf("%s | %s | %s",
			runewidth.FillRight(field, fieldWidth),
			runewidth.FillRight(truncateWidth(a.Title, titleWidth), titleWidth),
			a.Journal)
	}
	if len(articles) > 0 {
		debugf("%s", strings.Repeat("-", fieldWidth+titleWidth+6))
	}
}
