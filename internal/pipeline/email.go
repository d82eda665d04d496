// =============================================================================
// email.go - メール送信モジュール
// =============================================================================
//
// このファイルはSMTP（デフォルトは Office 365）を使用して日報メールを送信します。
//
// =============================================================================
// 【処理の流れ】
// =============================================================================
//
// 1. 設定の検証（ユーザー名・パスワード・宛先・SMTPサーバー）
// 2. MIMEメッセージを構築
//      multipart/mixed
//        ├─ multipart/alternative
//        │    ├─ text/plain（Markdown版）
//        │    └─ text/html
//        └─ 添付ファイル（base64）
// 3. SMTP送信（1回のみ。リトライはしない）
//
// 送信結果は bool で返す。失敗理由はログに出す。
//
// =============================================================================
// 【必要な環境変数】
// =============================================================================
//
//   SMTP_SERVER      - SMTPサーバー（デフォルト: smtp.office365.com）
//   SMTP_PORT        - SMTPポート（デフォルト: 587）
//   EMAIL_USERNAME   - 送信元アドレス兼ログインユーザー
//   EMAIL_PASSWORD   - パスワード（アプリパスワード推奨）
//   EMAIL_RECIPIENTS - 宛先（カンマ区切りで複数可）
//   EMAIL_BCC        - BCC宛先（カンマ区切り、ヘッダーには出さない）
//
// =============================================================================
// 【初心者向けポイント】
// =============================================================================
//
// - smtp.SendMail はサーバーが対応していれば自動的に STARTTLS で暗号化する
// - PLAIN認証は暗号化された接続（またはlocalhost）でしか使えない
// - BCCは「エンベロープの宛先」には含めるが「Bccヘッダー」は書かない
// - RFC 5322: ヘッダーと本文は空行（\r\n）で区切る
//
// =============================================================================
package pipeline

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// sendMailFunc は smtp.SendMail と同じシグネチャ（テストで差し替える）
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender はメール送信を担当する
type EmailSender struct {
	config   EmailConfig
	sendMail sendMailFunc
	now      func() time.Time
}

// NewEmailSender は新しいメール送信者を作成する
func NewEmailSender(cfg EmailConfig) *EmailSender {
	return &EmailSender{
		config:   cfg,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// ValidateConfig は送信に必要な設定が揃っているかを確認する
func (es *EmailSender) ValidateConfig() bool {
	c := es.config
	if c.Username == "" || c.Password == "" {
		errorf("email username or password is not configured")
		return false
	}
	if len(c.Recipients) == 0 {
		errorf("email recipient list is empty")
		return false
	}
	if c.SMTPServer == "" || c.SMTPPort <= 0 {
		errorf("SMTP server configuration is incomplete")
		return false
	}
	return true
}

// =============================================================================
// メール送信
// =============================================================================

// SendDailyReport は日報メールを送信する
//
// subject が空の場合は "<日報タイトル> - YYYY/MM/DD" を使う。
// 添付ファイルが読めない場合はログを出してその添付だけ飛ばす。
func (es *EmailSender) SendDailyReport(htmlContent, markdownContent, subject string, attachments []string) bool {
	if subject == "" {
		subject = fmt.Sprintf("%s - %s", DefaultReportTitle, es.now().Format("2006/01/02"))
	}
	msg, err := es.buildMessage(subject, markdownContent, htmlContent, attachments)
	if err != nil {
		errorf("building report email failed: %v", err)
		return false
	}
	return es.send(msg)
}

// SendTestEmail は設定確認用のテストメールを送信する
func (es *EmailSender) SendTestEmail(content string) bool {
	if content == "" {
		content = "This is a test email."
	}
	sentAt := es.now().Format("2006-01-02 15:04:05")
	htmlBody := fmt.Sprintf(`<html>
<body>
    <h2>Nature journals daily report system</h2>
    <p>%s</p>
    <p>Sent at: %s</p>
    <p>If you received this email, the email configuration is correct.</p>
</body>
</html>`, html.EscapeString(content), sentAt)

	msg, err := es.buildMessage("Nature journals daily report system - test email", content, htmlBody, nil)
	if err != nil {
		errorf("building test email failed: %v", err)
		return false
	}
	return es.send(msg)
}

// send はSMTPで1回だけ送信する
//
// エンベロープの宛先は To + Bcc。
func (es *EmailSender) send(msg []byte) bool {
	c := es.config
	recipients := append(append([]string{}, c.Recipients...), c.BccRecipients...)
	addr := net.JoinHostPort(c.SMTPServer, strconv.Itoa(c.SMTPPort))
	auth := smtp.PlainAuth("", c.Username, c.Password, c.SMTPServer)

	if err := es.sendMail(addr, auth, c.Username, recipients, msg); err != nil {
		errorf("sending email failed: %v", err)
		return false
	}
	infof("email sent to %d recipients", len(recipients))
	return true
}

// =============================================================================
// MIMEメッセージ構築
// =============================================================================

// buildMessage はRFC 5322 / MIME形式のメッセージを構築する
//
// 【構造】
//
//	From: sender@example.com
//	To: a@example.com, b@example.com
//	Subject: =?utf-8?q?...?=
//	MIME-Version: 1.0
//	Content-Type: multipart/mixed; boundary=...
//
//	--mixed
//	Content-Type: multipart/alternative; boundary=...
//	  (text/plain, text/html)
//	--mixed
//	Content-Type: application/octet-stream（添付）
func (es *EmailSender) buildMessage(subject, textBody, htmlBody string, attachments []string) ([]byte, error) {
	// multipart/alternative を先に組み立てる（境界文字列をヘッダーに書くため）
	var alt bytes.Buffer
	altWriter := multipart.NewWriter(&alt)
	if err := writeTextPart(altWriter, "text/plain; charset=UTF-8", textBody); err != nil {
		return nil, err
	}
	if err := writeTextPart(altWriter, "text/html; charset=UTF-8", htmlBody); err != nil {
		return nil, err
	}
	if err := altWriter.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	mixed := multipart.NewWriter(&msg)

	fmt.Fprintf(&msg, "From: %s\r\n", es.config.Username)
	if len(es.config.Recipients) > 0 {
		fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(es.config.Recipients, ", "))
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", es.now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\n", mixed.Boundary())
	msg.WriteString("\r\n")

	altHeader := textproto.MIMEHeader{}
	altHeader.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", altWriter.Boundary()))
	part, err := mixed.CreatePart(altHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(alt.Bytes()); err != nil {
		return nil, err
	}

	for _, path := range attachments {
		if err := writeAttachment(mixed, path); err != nil {
			errorf("adding attachment failed: %s: %v", path, err)
			continue
		}
		infof("attachment added: %s", path)
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

// writeTextPart は quoted-printable でテキストパートを書く
func writeTextPart(w *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

// writeAttachment はファイルを base64 の添付パートとして書く（76文字で改行）
func writeAttachment(w *multipart.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := part.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = part.Write([]byte(encoded + "\r\n"))
	return err
}
