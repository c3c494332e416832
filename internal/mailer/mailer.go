package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const workbookMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Config holds SMTP settings for outbound report email.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	SenderName string
	Recipients []string
}

// ImageLister returns the image paths captured on a given day, oldest first.
// nil disables image attachments.
type ImageLister interface {
	DailyImages(day time.Time) ([]string, error)
}

// Mailer sends the daily report and test emails over SMTP.
type Mailer struct {
	logger    *zap.Logger
	cfg       Config
	location  string
	teleopURL string
	images    ImageLister

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a mailer.
func New(logger *zap.Logger, cfg Config, location, teleopURL string, images ImageLister) *Mailer {
	return &Mailer{
		logger:    logger.Named("mailer"),
		cfg:       cfg,
		location:  location,
		teleopURL: teleopURL,
		images:    images,
		send:      smtp.SendMail,
	}
}

// Send emails the report workbook plus the day's captured images to all
// configured recipients.
func (m *Mailer) Send(ctx context.Context, now time.Time, workbookPath string) error {
	recipients := validRecipients(m.cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients configured")
	}

	var imagePaths []string
	if m.images != nil {
		var err error
		imagePaths, err = m.images.DailyImages(now)
		if err != nil {
			m.logger.Warn("Failed to list daily images, sending without them", zap.Error(err))
			imagePaths = nil
		}
	}

	subject := fmt.Sprintf("Daily Report: %s - %s", now.Format("2006-01-02"), m.location)
	msg, err := m.buildMessage(recipients, subject, m.reportText(imagePaths), m.reportHTML(imagePaths), workbookPath, imagePaths)
	if err != nil {
		return err
	}

	m.logger.Info("Sending report email",
		zap.String("workbook", filepath.Base(workbookPath)),
		zap.Int("recipients", len(recipients)),
		zap.Int("images", len(imagePaths)))
	return m.deliver(recipients, msg)
}

// SendTest delivers a short verification email.
func (m *Mailer) SendTest(ctx context.Context, now time.Time) error {
	recipients := validRecipients(m.cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients configured")
	}

	subject := fmt.Sprintf("Test Report from %s", m.location)
	body := fmt.Sprintf("This is a test report from %s.\nTime: %s\n", m.location, now.Format("2006-01-02 15:04:05"))
	html := "<html><body><p>" + strings.ReplaceAll(body, "\n", "<br>") + "</p></body></html>"

	msg, err := m.buildMessage(recipients, subject, body, html, "", nil)
	if err != nil {
		return err
	}
	return m.deliver(recipients, msg)
}

func (m *Mailer) deliver(recipients []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.send(addr, auth, m.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (m *Mailer) reportText(imagePaths []string) string {
	var b strings.Builder
	b.WriteString("The Excel workbook is attached with data for review.\n")
	fmt.Fprintf(&b, "Location: %s\n", m.location)
	if len(imagePaths) > 0 {
		fmt.Fprintf(&b, "Also attached are %d images captured during the day.\n", len(imagePaths))
	}
	if m.teleopURL != "" && m.teleopURL != "#" {
		fmt.Fprintf(&b, "Click here for the link to a real-time view of the store: %s\n", m.teleopURL)
	}
	return b.String()
}

func (m *Mailer) reportHTML(imagePaths []string) string {
	var b strings.Builder
	b.WriteString("<html><body><p>The Excel workbook is attached with data for review.</p>")
	fmt.Fprintf(&b, "<p>Location: %s</p>", m.location)
	if len(imagePaths) > 0 {
		fmt.Fprintf(&b, "<p>Also attached are %d images captured during the day.</p>", len(imagePaths))
	}
	if m.teleopURL != "" && m.teleopURL != "#" {
		fmt.Fprintf(&b, `<p>Click <a href="%s">here</a> for the link to a real-time view of the store.</p>`, m.teleopURL)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// buildMessage assembles a multipart/mixed MIME message with an alternative
// text/html body plus base64 attachments.
func (m *Mailer) buildMessage(recipients []string, subject, textBody, htmlBody, workbookPath string, imagePaths []string) ([]byte, error) {
	from := m.cfg.From
	if m.cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.SenderName, m.cfg.From)
	}

	var body bytes.Buffer
	mixed := multipart.NewWriter(&body)

	headers := []string{
		"From: " + from,
		"To: " + strings.Join(recipients, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="` + mixed.Boundary() + `"`,
	}

	// Alternative part: plain text and HTML body.
	altBuf := &bytes.Buffer{}
	alt := multipart.NewWriter(altBuf)
	textPart, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/plain; charset="UTF-8"`},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	textPart.Write([]byte(textBody))

	htmlPart, err := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`text/html; charset="UTF-8"`},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	htmlPart.Write([]byte(htmlBody))
	alt.Close()

	bodyPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {`multipart/alternative; boundary="` + alt.Boundary() + `"`},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	bodyPart.Write(altBuf.Bytes())

	for _, img := range imagePaths {
		if err := attachFile(mixed, img, "image/jpeg"); err != nil {
			m.logger.Error("Failed to attach image", zap.String("path", img), zap.Error(err))
		}
	}
	if workbookPath != "" {
		if err := attachFile(mixed, workbookPath, workbookMIMEType); err != nil {
			return nil, fmt.Errorf("failed to attach workbook: %w", err)
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func attachFile(w *multipart.Writer, path, mimeType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf(`%s; name="%s"`, mimeType, name)},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf(`attachment; filename="%s"`, name)},
	})
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	// RFC 2045 line length limit.
	for len(encoded) > 76 {
		part.Write([]byte(encoded[:76] + "\r\n"))
		encoded = encoded[76:]
	}
	part.Write([]byte(encoded))
	return nil
}

func validRecipients(recipients []string) []string {
	valid := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if strings.Contains(r, "@") {
			valid = append(valid, r)
		}
	}
	return valid
}
