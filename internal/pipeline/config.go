// =============================================================================
// config.go - 設定管理
// =============================================================================
//
// このファイルはCLIフラグの解析と、環境変数・設定ファイルからの設定読み込みを
// 行います。
//
// 【設定グループ】
//   - AIConfig:      要約API（DeepSeek / OpenAI互換）設定
//   - EmailConfig:   SMTP設定
//   - AppConfig:     出力・スケジュール・ログ設定
//   - JournalConfig: 収集対象の雑誌（一覧ページURL、RSS）
//   - CLIOptions:    コマンドラインフラグ
//
// 【読み込み順】
//  1. .env（godotenv、存在しなければ警告のみ）
//  2. config.yaml（viper、任意）
//  3. 環境変数（viper.AutomaticEnv、最優先）
//  4. JOURNALS_FILE が指定されていれば雑誌リストをYAMLから読み込む
//
// =============================================================================
package pipeline

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// 設定の検証エラー
var (
	ErrNoJournals          = errors.New("at least one journal is required")
	ErrNoEnabledJournals   = errors.New("at least one journal must be enabled")
	ErrJournalMissingName  = errors.New("journal name is required")
	ErrJournalMissingURL   = errors.New("journal url or feed_url is required")
	ErrInvalidOutputFormat = errors.New("OUTPUT_FORMAT must be one of: markdown, html, json, all")
	ErrInvalidCrawlTime    = errors.New("CRAWL_TIME must be in HH:MM format")
	ErrInvalidMaxArticles  = errors.New("MAX_ARTICLES_PER_JOURNAL must be at least 1")
	ErrInvalidDate         = errors.New("date must be in YYYY-MM-DD format")
)

// =============================================================================
// 設定構造体
// =============================================================================

// Config は日報システムの全設定を保持する
type Config struct {
	AI       AIConfig
	Email    EmailConfig
	App      AppConfig
	Notion   NotionConfig
	Journals []JournalConfig
}

// AIConfig は要約APIの設定
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// Language は要約・キーポイントの出力言語
	Language string
}

// EmailConfig はSMTP送信の設定
type EmailConfig struct {
	SMTPServer    string
	SMTPPort      int
	Username      string
	Password      string
	Recipients    []string
	BccRecipients []string
}

// AppConfig は出力・スケジュールなどの設定
type AppConfig struct {
	EnableEmailSending    bool
	OutputFormat          string // "markdown" | "html" | "json" | "all"
	OutputDir             string
	TemplateDir           string
	ReportTitle           string
	CrawlTime             string // "HH:MM"（ローカル時刻）
	MaxArticlesPerJournal int
	RecentDays            int
	CrawlDelay            time.Duration
	AnalyzeDelay          time.Duration
	HTTPTimeout           time.Duration
	UserAgent             string
	BaseURL               string // 相対リンク解決用
	LogLevel              string
	LogFormat             string // "text" | "json"
	JournalsFile          string
}

// NotionConfig はNotionアーカイブの設定
//
// DatabaseID が空で PageID があれば、初回にそのページの下へDBを作成する。
type NotionConfig struct {
	Token      string
	DatabaseID string
	PageID     string
}

// Enabled はNotionアーカイブに必要な値が揃っているかを返す
func (c NotionConfig) Enabled() bool {
	return c.Token != "" && (c.DatabaseID != "" || c.PageID != "")
}

// JournalConfig は収集対象の雑誌
type JournalConfig struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	FeedURL  string   `yaml:"feed_url"`
	Enabled  bool     `yaml:"enabled"`
	Keywords []string `yaml:"keywords"`
}

// DefaultReportTitle はデフォルトの日報タイトル
const DefaultReportTitle = "Nature Journals Daily Research Report"

// DefaultUserAgent は一覧ページ取得時のUser-Agent
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultJournals は組み込みの雑誌リスト（Nature系7誌）
func DefaultJournals() []JournalConfig {
	return []JournalConfig{
		{
			Name:     "Nature",
			URL:      "https://www.nature.com/nature/research-articles",
			FeedURL:  "https://www.nature.com/nature.rss",
			Enabled:  true,
			Keywords: []string{"quantum", "AI", "machine learning", "neuroscience"},
		},
		{
			Name:     "Nature Communications",
			URL:      "https://www.nature.com/ncomms/research-articles",
			FeedURL:  "https://www.nature.com/ncomms.rss",
			Enabled:  true,
			Keywords: []string{"interdisciplinary", "cross-disciplinary", "multidisciplinary", "general science"},
		},
		{
			Name:     "Nature Materials",
			URL:      "https://www.nature.com/nmat/research-articles",
			FeedURL:  "https://www.nature.com/nmat.rss",
			Enabled:  true,
			Keywords: []string{"materials", "nanotechnology", "quantum materials"},
		},
		{
			Name:     "Nature Photonics",
			URL:      "https://www.nature.com/nphoton/research-articles",
			FeedURL:  "https://www.nature.com/nphoton.rss",
			Enabled:  true,
			Keywords: []string{"photonics", "optics", "laser", "quantum optics"},
		},
		{
			Name:     "Nature Nanotechnology",
			URL:      "https://www.nature.com/nnano/research-articles",
			FeedURL:  "https://www.nature.com/nnano.rss",
			Enabled:  true,
			Keywords: []string{"nanotechnology", "nano", "quantum dots"},
		},
		{
			Name:     "Nature Electronics",
			URL:      "https://www.nature.com/natelectron/research-articles",
			FeedURL:  "https://www.nature.com/natelectron.rss",
			Enabled:  true,
			Keywords: []string{"electronics", "semiconductor", "quantum computing"},
		},
		{
			Name:     "Nature Biotechnology",
			URL:      "https://www.nature.com/nbt/research-articles",
			FeedURL:  "https://www.nature.com/nbt.rss",
			Enabled:  true,
			Keywords: []string{"biotechnology", "bio", "genetics", "CRISPR"},
		},
	}
}

// =============================================================================
// 読み込み
// =============================================================================

// LoadConfig は .env・config.yaml・環境変数から設定を読み込む
//
// .env が見つからない場合は警告を出すだけで処理を続行する。
func LoadConfig() (*Config, error) {
	return LoadConfigWithOptions(nil)
}

// LoadConfigWithOptions は設定を読み込み、CLIの上書き値を反映してから検証する
//
// 検証は上書き後に1回だけ行う（不正な OUTPUT_FORMAT を -outputFormat で直せる）。
func LoadConfigWithOptions(opts *CLIOptions) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		debugf(".env file not loaded: %v (using environment variables only)", err)
	}

	v := viper.New()
	setDefaults(v)

	// config.yaml は任意（存在しなければ無視）
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config.yaml: %w", err)
		}
	}

	v.AutomaticEnv()

	return configWithOptions(v, opts)
}

// setDefaults はデフォルト値を設定する
func setDefaults(v *viper.Viper) {
	v.SetDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1")
	v.SetDefault("DEEPSEEK_MODEL", "deepseek-chat")
	v.SetDefault("DEEPSEEK_MAX_TOKENS", 1000)
	v.SetDefault("DEEPSEEK_TEMPERATURE", 0.7)
	v.SetDefault("DEEPSEEK_TIMEOUT", "60s")
	v.SetDefault("SUMMARY_LANGUAGE", "English")

	v.SetDefault("SMTP_SERVER", "smtp.office365.com")
	v.SetDefault("SMTP_PORT", 587)

	v.SetDefault("ENABLE_EMAIL_SENDING", true)
	v.SetDefault("OUTPUT_FORMAT", "all")
	v.SetDefault("OUTPUT_DIR", "output")
	v.SetDefault("TEMPLATE_DIR", "templates")
	v.SetDefault("REPORT_TITLE", DefaultReportTitle)
	v.SetDefault("CRAWL_TIME", "07:00")
	v.SetDefault("MAX_ARTICLES_PER_JOURNAL", 10)
	v.SetDefault("RECENT_DAYS", 7)
	v.SetDefault("CRAWL_DELAY", "2s")
	v.SetDefault("ANALYZE_DELAY", "1s")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("USER_AGENT", DefaultUserAgent)
	v.SetDefault("BASE_URL", "https://www.nature.com")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// configFromViper はviperの値から Config を組み立てて検証する
func configFromViper(v *viper.Viper) (*Config, error) {
	return configWithOptions(v, nil)
}

// configWithOptions は viper の値に CLI の上書きを重ねてから検証する
func configWithOptions(v *viper.Viper, opts *CLIOptions) (*Config, error) {
	cfg, err := buildConfig(v)
	if err != nil {
		return nil, err
	}
	if opts != nil {
		if err := opts.override(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildConfig は viper の値から Config を組み立てる（検証はしない）
func buildConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AI: AIConfig{
			APIKey:      v.GetString("DEEPSEEK_API_KEY"),
			BaseURL:     strings.TrimRight(v.GetString("DEEPSEEK_BASE_URL"), "/"),
			Model:       v.GetString("DEEPSEEK_MODEL"),
			MaxTokens:   v.GetInt("DEEPSEEK_MAX_TOKENS"),
			Temperature: v.GetFloat64("DEEPSEEK_TEMPERATURE"),
			Timeout:     durationOr(v.GetString("DEEPSEEK_TIMEOUT"), 60*time.Second),
			Language:    v.GetString("SUMMARY_LANGUAGE"),
		},
		Email: EmailConfig{
			SMTPServer:    v.GetString("SMTP_SERVER"),
			SMTPPort:      v.GetInt("SMTP_PORT"),
			Username:      v.GetString("EMAIL_USERNAME"),
			Password:      v.GetString("EMAIL_PASSWORD"),
			Recipients:    splitList(v.GetString("EMAIL_RECIPIENTS")),
			BccRecipients: splitList(v.GetString("EMAIL_BCC")),
		},
		App: AppConfig{
			EnableEmailSending:    v.GetBool("ENABLE_EMAIL_SENDING"),
			OutputFormat:          strings.ToLower(v.GetString("OUTPUT_FORMAT")),
			OutputDir:             v.GetString("OUTPUT_DIR"),
			TemplateDir:           v.GetString("TEMPLATE_DIR"),
			ReportTitle:           v.GetString("REPORT_TITLE"),
			CrawlTime:             v.GetString("CRAWL_TIME"),
			MaxArticlesPerJournal: v.GetInt("MAX_ARTICLES_PER_JOURNAL"),
			RecentDays:            v.GetInt("RECENT_DAYS"),
			CrawlDelay:            durationOr(v.GetString("CRAWL_DELAY"), 2*time.Second),
			AnalyzeDelay:          durationOr(v.GetString("ANALYZE_DELAY"), time.Second),
			HTTPTimeout:           durationOr(v.GetString("HTTP_TIMEOUT"), 30*time.Second),
			UserAgent:             v.GetString("USER_AGENT"),
			BaseURL:               v.GetString("BASE_URL"),
			LogLevel:              v.GetString("LOG_LEVEL"),
			LogFormat:             v.GetString("LOG_FORMAT"),
			JournalsFile:          v.GetString("JOURNALS_FILE"),
		},
		Notion: NotionConfig{
			Token:      v.GetString("NOTION_TOKEN"),
			DatabaseID: v.GetString("NOTION_DATABASE_ID"),
			PageID:     v.GetString("NOTION_PAGE_ID"),
		},
		Journals: DefaultJournals(),
	}

	if cfg.App.JournalsFile != "" {
		journals, err := LoadJournalsFile(cfg.App.JournalsFile)
		if err != nil {
			return nil, err
		}
		cfg.Journals = journals
	}
	return cfg, nil
}

// journalsFile は JOURNALS_FILE のYAML構造
type journalsFile struct {
	Journals []JournalConfig `yaml:"journals"`
}

// LoadJournalsFile はYAMLファイルから雑誌リストを読み込む
//
// 【YAML形式】
//
//	journals:
//	  - name: Nature Photonics
//	    url: https://www.nature.com/nphoton/research-articles
//	    feed_url: https://www.nature.com/nphoton.rss
//	    enabled: true
//	    keywords: [photonics, optics]
func LoadJournalsFile(path string) ([]JournalConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading journals file: %w", err)
	}
	var f journalsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing journals file %s: %w", path, err)
	}
	if err := validateJournals(f.Journals); err != nil {
		return nil, err
	}
	return f.Journals, nil
}

// Validate は設定値の妥当性を検証する
func (c *Config) Validate() error {
	switch c.App.OutputFormat {
	case "markdown", "html", "json", "all":
	default:
		return ErrInvalidOutputFormat
	}
	if _, _, err := parseClock(c.App.CrawlTime); err != nil {
		return err
	}
	if c.App.MaxArticlesPerJournal < 1 {
		return ErrInvalidMaxArticles
	}
	return validateJournals(c.Journals)
}

func validateJournals(journals []JournalConfig) error {
	if len(journals) == 0 {
		return ErrNoJournals
	}
	enabled := 0
	for _, j := range journals {
		if strings.TrimSpace(j.Name) == "" {
			return ErrJournalMissingName
		}
		if j.URL == "" && j.FeedURL == "" {
			return fmt.Errorf("%s: %w", j.Name, ErrJournalMissingURL)
		}
		if j.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoEnabledJournals
	}
	return nil
}

// EnabledJournals は有効な雑誌のみを返す
func (c *Config) EnabledJournals() []JournalConfig {
	var out []JournalConfig
	for _, j := range c.Journals {
		if j.Enabled {
			out = append(out, j)
		}
	}
	return out
}

// =============================================================================
// CLIフラグ
// =============================================================================

// CLIOptions はコマンドラインフラグ
type CLIOptions struct {
	Once     bool
	Test     bool
	Schedule bool
	DateRaw  string

	// 上書き用（空・ゼロ値なら環境変数の値を使用）
	JournalsFile string
	OutputFormat string
	OutputDir    string
	NotionClip   bool
	NoEmail      bool
}

// ParseFlags はCLIフラグを解析する
//
// フラグが何も指定されない場合は -once と同じ動作になる。
func ParseFlags(args []string) (*CLIOptions, error) {
	opts := &CLIOptions{}
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)

	fs.BoolVar(&opts.Once, "once", false, "run the daily report once and exit")
	fs.BoolVar(&opts.Test, "test", false, "validate email config, send a test email and crawl the first journal")
	fs.BoolVar(&opts.Schedule, "schedule", false, "run the daily report every day at CRAWL_TIME")
	fs.StringVar(&opts.DateRaw, "date", "", "target date (YYYY-MM-DD); default: today")

	fs.StringVar(&opts.JournalsFile, "journals", "", "optional: YAML file with the journal list")
	fs.StringVar(&opts.OutputFormat, "outputFormat", "", "override OUTPUT_FORMAT: markdown|html|json|all")
	fs.StringVar(&opts.OutputDir, "out", "", "override OUTPUT_DIR")
	fs.BoolVar(&opts.NotionClip, "notionClip", false, "archive analyzed articles to the Notion database")
	fs.BoolVar(&opts.NoEmail, "noEmail", false, "skip sending the report email")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if _, err := opts.TargetDate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// TargetDate は -date の値をパースする（未指定ならnil）
func (o *CLIOptions) TargetDate() (*time.Time, error) {
	if o.DateRaw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", o.DateRaw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, o.DateRaw)
	}
	return &t, nil
}

// Apply はCLIの上書き値を設定に反映し、検証する
func (o *CLIOptions) Apply(cfg *Config) error {
	if err := o.override(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func (o *CLIOptions) override(cfg *Config) error {
	if o.JournalsFile != "" {
		journals, err := LoadJournalsFile(o.JournalsFile)
		if err != nil {
			return err
		}
		cfg.Journals = journals
	}
	if o.OutputFormat != "" {
		cfg.App.OutputFormat = strings.ToLower(o.OutputFormat)
	}
	if o.OutputDir != "" {
		cfg.App.OutputDir = o.OutputDir
	}
	if o.NoEmail {
		cfg.App.EnableEmailSending = false
	}
	return nil
}

// =============================================================================
// ヘルパー
// =============================================================================

// splitList はカンマ区切り文字列を分割し、空要素を除去する
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// durationOr は文字列を time.Duration にパースし、失敗時はdefを返す
func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// parseClock は "HH:MM" を時・分に分解する
func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, ErrInvalidCrawlTime
	}
	return t.Hour(), t.Minute(), nil
}
