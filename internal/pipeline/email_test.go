package pipeline

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedMail は偽の sendMail が受け取った値
type capturedMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func testEmailConfig() EmailConfig {
	return EmailConfig{
		SMTPServer:    "smtp.example.com",
		SMTPPort:      587,
		Username:      "reports@example.com",
		Password:      "secret",
		Recipients:    []string{"a@example.com", "b@example.com"},
		BccRecipients: []string{"hidden@example.com"},
	}
}

func newTestSender(cfg EmailConfig, sendErr error) (*EmailSender, *capturedMail) {
	got := &capturedMail{}
	es := NewEmailSender(cfg)
	es.now = func() time.Time { return time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC) }
	es.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		got.addr, got.from, got.to, got.msg = addr, from, to, msg
		return sendErr
	}
	return es, got
}

// mailParts はメッセージを分解した結果
type mailParts struct {
	header      mail.Header
	subject     string
	text        string
	html        string
	attachments map[string][]byte
}

func parseMail(t *testing.T, raw []byte) mailParts {
	t.Helper()
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	out := mailParts{header: m.Header, attachments: map[string][]byte{}}
	out.subject, err = new(mime.WordDecoder).DecodeHeader(m.Header.Get("Subject"))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	mixed := multipart.NewReader(m.Body, params["boundary"])
	for {
		part, err := mixed.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		ct, ctParams, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		require.NoError(t, err)
		if ct == "multipart/alternative" {
			alt := multipart.NewReader(part, ctParams["boundary"])
			for {
				p, err := alt.NextPart()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				body, err := io.ReadAll(p)
				require.NoError(t, err)
				switch {
				case strings.HasPrefix(p.Header.Get("Content-Type"), "text/plain"):
					out.text = string(body)
				case strings.HasPrefix(p.Header.Get("Content-Type"), "text/html"):
					out.html = string(body)
				}
			}
			continue
		}

		encoded, err := io.ReadAll(part)
		require.NoError(t, err)
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
		require.NoError(t, err)
		out.attachments[part.FileName()] = data
	}
	return out
}

// ============================================================================
// ValidateConfig Tests
// ============================================================================

func TestEmailSender_ValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *EmailConfig)
		want   bool
	}{
		{"complete", func(c *EmailConfig) {}, true},
		{"no username", func(c *EmailConfig) { c.Username = "" }, false},
		{"no password", func(c *EmailConfig) { c.Password = "" }, false},
		{"no recipients", func(c *EmailConfig) { c.Recipients = nil }, false},
		{"no server", func(c *EmailConfig) { c.SMTPServer = "" }, false},
		{"no port", func(c *EmailConfig) { c.SMTPPort = 0 }, false},
		{"bcc only optional", func(c *EmailConfig) { c.BccRecipients = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testEmailConfig()
			tt.mutate(&cfg)
			assert.Equal(t, tt.want, NewEmailSender(cfg).ValidateConfig())
		})
	}
}

// ============================================================================
// SendDailyReport Tests
// ============================================================================

func TestSendDailyReport_BuildsMultipartMessage(t *testing.T) {
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "nature_daily_report_20261019.md")
	jsonPath := filepath.Join(dir, "nature_daily_report_20261019.json")
	require.NoError(t, os.WriteFile(mdPath, []byte("# Report\n\nüñíçødé body"), 0o644))
	jsonBody := []byte(`{"articles":[` + strings.Repeat(`{"title":"long article title"},`, 20) + `{}]}`)
	require.NoError(t, os.WriteFile(jsonPath, jsonBody, 0o644))

	es, got := newTestSender(testEmailConfig(), nil)
	ok := es.SendDailyReport(
		"<html><body><h1>Report</h1></body></html>",
		"# Report\n\nA line that is definitely longer than seventy-six characters so quoted-printable must wrap it.",
		"Nature 日報 - 2026/10/19",
		[]string{mdPath, jsonPath, filepath.Join(dir, "missing.html")},
	)
	require.True(t, ok)

	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, "reports@example.com", got.from)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "hidden@example.com"}, got.to)

	parts := parseMail(t, got.msg)
	assert.Equal(t, "Nature 日報 - 2026/10/19", parts.subject)
	assert.Equal(t, "reports@example.com", parts.header.Get("From"))
	assert.Equal(t, "a@example.com, b@example.com", parts.header.Get("To"))
	assert.Equal(t, "1.0", parts.header.Get("MIME-Version"))
	assert.Empty(t, parts.header.Get("Bcc"))
	assert.NotContains(t, string(got.msg), "hidden@example.com")

	assert.Contains(t, parts.text, "definitely longer than seventy-six characters so quoted-printable must wrap it.")
	assert.Equal(t, "<html><body><h1>Report</h1></body></html>", parts.html)

	require.Len(t, parts.attachments, 2, "unreadable attachment is skipped")
	assert.Equal(t, "# Report\n\nüñíçødé body", string(parts.attachments["nature_daily_report_20261019.md"]))
	assert.Equal(t, jsonBody, parts.attachments["nature_daily_report_20261019.json"])

	for _, line := range strings.Split(string(got.msg), "\r\n") {
		assert.LessOrEqual(t, len(line), 998)
	}
}

func TestSendDailyReport_DefaultSubject(t *testing.T) {
	es, got := newTestSender(testEmailConfig(), nil)
	require.True(t, es.SendDailyReport("<p>x</p>", "x", "", nil))

	parts := parseMail(t, got.msg)
	assert.Equal(t, DefaultReportTitle+" - 2026/10/19", parts.subject)
	assert.Empty(t, parts.attachments)
}

func TestSendDailyReport_SendFailure(t *testing.T) {
	es, _ := newTestSender(testEmailConfig(), errors.New("535 authentication failed"))
	assert.False(t, es.SendDailyReport("<p>x</p>", "x", "subject", nil))
}

func TestSendDailyReport_UnreachableServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := testEmailConfig()
	cfg.SMTPServer = "127.0.0.1"
	cfg.SMTPPort = port

	assert.False(t, NewEmailSender(cfg).SendDailyReport("<p>x</p>", "x", "subject", nil))
}

// ============================================================================
// SendTestEmail Tests
// ============================================================================

func TestSendTestEmail(t *testing.T) {
	es, got := newTestSender(testEmailConfig(), nil)
	require.True(t, es.SendTestEmail("Hello <world>"))

	parts := parseMail(t, got.msg)
	assert.Equal(t, "Nature journals daily report system - test email", parts.subject)
	assert.Equal(t, "Hello <world>", parts.text)
	assert.Contains(t, parts.html, "<p>Hello &lt;world&gt;</p>")
	assert.Contains(t, parts.html, "Sent at: 2026-10-19 07:00:00")
}

func TestSendTestEmail_DefaultContent(t *testing.T) {
	es, got := newTestSender(testEmailConfig(), nil)
	require.True(t, es.SendTestEmail(""))

	parts := parseMail(t, got.msg)
	assert.Equal(t, "This is a test email.", parts.text)
}
