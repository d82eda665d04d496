package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportDate = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T, format string) *ReportGenerator {
	t.Helper()
	g := NewReportGenerator(AppConfig{
		OutputDir:    t.TempDir(),
		OutputFormat: format,
		ReportTitle:  "Daily",
	})
	g.now = func() time.Time { return time.Date(2026, 10, 19, 7, 30, 0, 0, time.UTC) }
	return g
}

func sampleReport(g *ReportGenerator) *DailyReport {
	r := g.GenerateDailyReport([]Article{
		{
			Title:         "Ultrafast <b>laser</b> pulses",
			Authors:       []string{"Alice Smith", "Bob Jones"},
			Journal:       "Nature Photonics",
			URL:           "https://www.nature.com/articles/s41566-026-0001-1",
			PublishDate:   reportDate,
			ArticleType:   ArticleTypeResearch,
			DOI:           "10.1038/s41566-026-0001-1",
			Summary:       "Pulses were shaped.",
			KeyPoints:     []string{"First point", "Second point"},
			ResearchField: FieldQuantumPhysics,
		},
		{
			Title:         "Cell atlas",
			Journal:       "Nature",
			URL:           "https://www.nature.com/articles/s41586-026-0002-2",
			PublishDate:   reportDate,
			ArticleType:   ArticleTypeNews,
			Summary:       SummaryFailed,
			KeyPoints:     []string{KeyPointsFailed},
			ResearchField: FieldBiology,
		},
	}, "", reportDate)
	r.SetFieldSummary(FieldQuantumPhysics, "Big day for quantum optics.")
	return r
}

// ============================================================================
// GenerateDailyReport Tests
// ============================================================================

func TestGenerateDailyReport(t *testing.T) {
	g := newTestGenerator(t, FormatAll)
	r := sampleReport(g)

	assert.Equal(t, "Daily", r.Title)
	assert.Equal(t, 2, r.TotalArticles)
	assert.Equal(t, []string{"Nature Photonics", "Nature"}, r.JournalsCovered)

	custom := g.GenerateDailyReport(nil, "Custom title", reportDate)
	assert.Equal(t, "Custom title", custom.Title)
	assert.Equal(t, 0, custom.TotalArticles)
}

func TestNewReportGenerator_Defaults(t *testing.T) {
	g := NewReportGenerator(AppConfig{})
	assert.Equal(t, DefaultReportTitle, g.title)
	assert.Equal(t, FormatAll, g.outputFormat)
}

// ============================================================================
// Rendering Tests
// ============================================================================

func TestRenderMarkdown(t *testing.T) {
	g := newTestGenerator(t, FormatAll)
	r := sampleReport(g)

	md := g.RenderMarkdown(r)

	assert.True(t, strings.HasPrefix(md, "# Daily - 2026/10/19\n"))
	assert.Contains(t, md, "- **Total articles**: 2")
	assert.Contains(t, md, "- **Journals covered**: 2")
	assert.Contains(t, md, "- **Quantum Physics**: 1")
	assert.Contains(t, md, "- **Biology**: 1")
	assert.Contains(t, md, "### Quantum Physics\nBig day for quantum optics.")
	assert.Contains(t, md, "### Nature Photonics")
	assert.Contains(t, md, "#### Ultrafast <b>laser</b> pulses")
	assert.Contains(t, md, "- **Authors**: Alice Smith, Bob Jones")
	assert.Contains(t, md, "- **Authors**: authors not available")
	assert.Contains(t, md, "- **DOI**: 10.1038/s41566-026-0001-1")
	assert.Contains(t, md, "- **Published**: 2026-10-19")
	assert.Contains(t, md, "**Summary**: Pulses were shaped.")
	assert.Contains(t, md, "- First point\n- Second point")
	assert.Equal(t, 1, strings.Count(md, "**Key points**:"), "failed key points are not listed")
	assert.Contains(t, md, "*Run ID: "+r.RunID+"*")
	assert.Contains(t, md, "*Generated at: 2026-10-19 07:30:00*")

	assert.Less(t, strings.Index(md, "### Nature Photonics"), strings.Index(md, "### Nature\n"))
}

func TestRenderHTML_EscapesContent(t *testing.T) {
	g := newTestGenerator(t, FormatAll)
	r := sampleReport(g)

	out := g.RenderHTML(r)

	assert.Contains(t, out, "<title>Daily - 2026/10/19</title>")
	assert.Contains(t, out, "Ultrafast &lt;b&gt;laser&lt;/b&gt; pulses")
	assert.NotContains(t, out, "<b>laser</b>")
	assert.Contains(t, out, `href="https://www.nature.com/articles/s41566-026-0001-1"`)
	assert.Contains(t, out, `<span class="stat-item">Quantum Physics: 1</span>`)
	assert.Contains(t, out, "Big day for quantum optics.")
	assert.Contains(t, out, "<li>First point</li>")
	assert.Equal(t, 1, strings.Count(out, `class="key-points"`))
}

func TestRender_TemplateOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, markdownTemplateName), []byte("CUSTOM {{.Report.Title}} ({{len .Journals}})"), 0o644))

	g := newTestGenerator(t, FormatAll)
	g.templateDir = dir
	r := sampleReport(g)

	assert.Equal(t, "CUSTOM Daily (2)", g.RenderMarkdown(r))
	assert.Contains(t, g.RenderHTML(r), "<h2>Overview</h2>", "HTML template is not overridden and falls back to the embedded one")
}

func TestRender_BrokenTemplateFallsBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, markdownTemplateName), []byte("{{.Report.Title"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, htmlTemplateName), []byte("{{range}}"), 0o644))

	g := newTestGenerator(t, FormatAll)
	g.templateDir = dir
	r := sampleReport(g)

	md := g.RenderMarkdown(r)
	assert.True(t, strings.HasPrefix(md, "# Daily - 2026/10/19\n\nTotal articles: 2\n"))
	assert.Contains(t, md, "## Cell atlas")

	out := g.RenderHTML(r)
	assert.Contains(t, out, "<h1>Daily - 2026/10/19</h1>")
	assert.Contains(t, out, "<h2>Ultrafast &lt;b&gt;laser&lt;/b&gt; pulses</h2>")
}

// ============================================================================
// SaveReport Tests
// ============================================================================

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "nature_daily_report_20261019.md", ReportFileName(reportDate, "md"))
}

func TestSaveReport_AllFormats(t *testing.T) {
	g := newTestGenerator(t, FormatAll)
	r := sampleReport(g)

	files, err := g.SaveReport(r, nil)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, filepath.Join(g.outputDir, "nature_daily_report_20261019.md"), files[FormatMarkdown])
	assert.Equal(t, filepath.Join(g.outputDir, "nature_daily_report_20261019.html"), files[FormatHTML])
	assert.Equal(t, filepath.Join(g.outputDir, "nature_daily_report_20261019.json"), files[FormatJSON])

	md, err := os.ReadFile(files[FormatMarkdown])
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Daily - 2026/10/19")

	raw, err := os.ReadFile(files[FormatJSON])
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, r.RunID, decoded["run_id"])
	assert.Equal(t, float64(2), decoded["total_articles"])
	assert.Len(t, decoded["articles"], 2)
}

func TestSaveReport_SingleFormatAndTargetDate(t *testing.T) {
	g := newTestGenerator(t, FormatJSON)
	r := sampleReport(g)
	target := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	files, err := g.SaveReport(r, &target)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(g.outputDir, "nature_daily_report_20261018.json"), files[FormatJSON])
	assert.FileExists(t, files[FormatJSON])
}

func TestSaveReport_OutputDirError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	g := newTestGenerator(t, FormatAll)
	g.outputDir = filepath.Join(blocker, "reports")

	files, err := g.SaveReport(sampleReport(g), nil)
	assert.Error(t, err)
	assert.Empty(t, files)
}
