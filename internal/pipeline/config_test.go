package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{
			OutputFormat:          FormatAll,
			CrawlTime:             "07:00",
			MaxArticlesPerJournal: 10,
		},
		Journals: DefaultJournals(),
	}
}

// ============================================================================
// Defaults / viper Tests
// ============================================================================

func TestConfigFromViper_Defaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := configFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "https://api.deepseek.com/v1", cfg.AI.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.AI.Model)
	assert.Equal(t, 1000, cfg.AI.MaxTokens)
	assert.InDelta(t, 0.7, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, "smtp.office365.com", cfg.Email.SMTPServer)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.True(t, cfg.App.EnableEmailSending)
	assert.Equal(t, "all", cfg.App.OutputFormat)
	assert.Equal(t, "07:00", cfg.App.CrawlTime)
	assert.Equal(t, 10, cfg.App.MaxArticlesPerJournal)
	assert.Equal(t, 7, cfg.App.RecentDays)
	assert.Equal(t, 2*time.Second, cfg.App.CrawlDelay)
	assert.Equal(t, time.Second, cfg.App.AnalyzeDelay)
	assert.Equal(t, DefaultReportTitle, cfg.App.ReportTitle)
	assert.Len(t, cfg.Journals, 7)
	assert.False(t, cfg.Notion.Enabled())
}

func TestConfigFromViper_Overrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("DEEPSEEK_BASE_URL", "http://localhost:8080/v1/")
	v.Set("EMAIL_RECIPIENTS", "a@example.com, b@example.com,,")
	v.Set("EMAIL_BCC", "c@example.com")
	v.Set("OUTPUT_FORMAT", "HTML")
	v.Set("CRAWL_DELAY", "500ms")
	v.Set("ANALYZE_DELAY", "not-a-duration")
	v.Set("NOTION_TOKEN", "secret")
	v.Set("NOTION_PAGE_ID", "page")

	cfg, err := configFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/v1", cfg.AI.BaseURL)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Email.Recipients)
	assert.Equal(t, []string{"c@example.com"}, cfg.Email.BccRecipients)
	assert.Equal(t, "html", cfg.App.OutputFormat)
	assert.Equal(t, 500*time.Millisecond, cfg.App.CrawlDelay)
	assert.Equal(t, time.Second, cfg.App.AnalyzeDelay)
	assert.True(t, cfg.Notion.Enabled())
}

func TestConfigFromViper_InvalidOutputFormat(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("OUTPUT_FORMAT", "pdf")

	_, err := configFromViper(v)
	assert.ErrorIs(t, err, ErrInvalidOutputFormat)
}

func TestConfigWithOptions_FlagCorrectsInvalidEnv(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("OUTPUT_FORMAT", "pdf")
	v.Set("ENABLE_EMAIL_SENDING", "true")

	cfg, err := configWithOptions(v, &CLIOptions{OutputFormat: "HTML", OutputDir: "/tmp/reports", NoEmail: true})
	require.NoError(t, err)
	assert.Equal(t, "html", cfg.App.OutputFormat)
	assert.Equal(t, "/tmp/reports", cfg.App.OutputDir)
	assert.False(t, cfg.App.EnableEmailSending)

	_, err = configWithOptions(v, &CLIOptions{})
	assert.ErrorIs(t, err, ErrInvalidOutputFormat, "without an override the env value is still rejected")

	_, err = configWithOptions(v, &CLIOptions{OutputFormat: "docx"})
	assert.ErrorIs(t, err, ErrInvalidOutputFormat)
}

// ============================================================================
// Validate Tests
// ============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"valid", func(c *Config) {}, nil},
		{"bad crawl time", func(c *Config) { c.App.CrawlTime = "7am" }, ErrInvalidCrawlTime},
		{"zero max articles", func(c *Config) { c.App.MaxArticlesPerJournal = 0 }, ErrInvalidMaxArticles},
		{"no journals", func(c *Config) { c.Journals = nil }, ErrNoJournals},
		{"missing name", func(c *Config) { c.Journals[0].Name = " " }, ErrJournalMissingName},
		{"missing url", func(c *Config) {
			c.Journals[0].URL = ""
			c.Journals[0].FeedURL = ""
		}, ErrJournalMissingURL},
		{"none enabled", func(c *Config) {
			for i := range c.Journals {
				c.Journals[i].Enabled = false
			}
		}, ErrNoEnabledJournals},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_EnabledJournals(t *testing.T) {
	cfg := validConfig()
	cfg.Journals[1].Enabled = false

	enabled := cfg.EnabledJournals()
	assert.Len(t, enabled, 6)
	for _, j := range enabled {
		assert.NotEqual(t, "Nature Communications", j.Name)
	}
}

// ============================================================================
// Journals file Tests
// ============================================================================

func TestLoadJournalsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journals.yaml")
	content := `journals:
  - name: Nature Photonics
    url: https://www.nature.com/nphoton/research-articles
    feed_url: https://www.nature.com/nphoton.rss
    enabled: true
    keywords: [photonics, optics]
  - name: Nature Energy
    feed_url: https://www.nature.com/nenergy.rss
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	journals, err := LoadJournalsFile(path)
	require.NoError(t, err)
	require.Len(t, journals, 2)
	assert.Equal(t, "Nature Photonics", journals[0].Name)
	assert.Equal(t, []string{"photonics", "optics"}, journals[0].Keywords)
	assert.True(t, journals[0].Enabled)
	assert.Equal(t, "", journals[1].URL)
	assert.False(t, journals[1].Enabled)
}

func TestLoadJournalsFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadJournalsFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("journals: [unclosed"), 0o644))
	_, err = LoadJournalsFile(broken)
	assert.Error(t, err)

	disabled := filepath.Join(dir, "disabled.yaml")
	require.NoError(t, os.WriteFile(disabled, []byte("journals:\n  - name: X\n    url: https://example.com\n"), 0o644))
	_, err = LoadJournalsFile(disabled)
	assert.ErrorIs(t, err, ErrNoEnabledJournals)
}

// ============================================================================
// CLI Tests
// ============================================================================

func TestParseFlags(t *testing.T) {
	opts, err := ParseFlags([]string{"-once", "-date=2026-10-19", "-outputFormat=json", "-noEmail"})
	require.NoError(t, err)

	assert.True(t, opts.Once)
	assert.False(t, opts.Schedule)
	assert.True(t, opts.NoEmail)

	target, err := opts.TargetDate()
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "2026-10-19", target.Format("2006-01-02"))
}

func TestParseFlags_InvalidDate(t *testing.T) {
	_, err := ParseFlags([]string{"-date=19/10/2026"})
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCLIOptions_TargetDate_Empty(t *testing.T) {
	target, err := (&CLIOptions{}).TargetDate()
	assert.NoError(t, err)
	assert.Nil(t, target)
}

func TestCLIOptions_Apply(t *testing.T) {
	cfg := validConfig()
	cfg.App.EnableEmailSending = true

	opts := &CLIOptions{OutputFormat: "Markdown", OutputDir: "/tmp/reports", NoEmail: true}
	require.NoError(t, opts.Apply(cfg))

	assert.Equal(t, "markdown", cfg.App.OutputFormat)
	assert.Equal(t, "/tmp/reports", cfg.App.OutputDir)
	assert.False(t, cfg.App.EnableEmailSending)

	bad := &CLIOptions{OutputFormat: "docx"}
	assert.ErrorIs(t, bad.Apply(validConfig()), ErrInvalidOutputFormat)
}

// ============================================================================
// Helper Tests
// ============================================================================

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,, b ,"))
	assert.Nil(t, splitList(""))
}

func TestParseClock(t *testing.T) {
	h, m, err := parseClock(" 07:30 ")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 30, m)

	_, _, err = parseClock("25:00")
	assert.ErrorIs(t, err, ErrInvalidCrawlTime)
}
