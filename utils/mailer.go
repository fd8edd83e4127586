package utils

import (
	"bytes"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"

	"vidbudova/config"
)

// Sender delivers one rendered email. Satisfied by the SMTP mailer in
// production and by fakes in tests.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

// Mailer sends email over SMTP via gomail.
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(to, subject, htmlBody string) error {
	if m.cfg.Host == "" {
		return fmt.Errorf("SMTP is not configured")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

// EmailData is the substitution context available to drip step and
// campaign templates.
type EmailData struct {
	Name           string
	Email          string
	UnsubscribeURL string
}

// RenderEmailBody executes the stored HTML content as a template
// against the recipient data.
func RenderEmailBody(htmlContent string, data EmailData) (string, error) {
	tmpl, err := template.New("email").Parse(htmlContent)
	if err != nil {
		return "", fmt.Errorf("error parsing template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}

// UnsubscribeURL builds the one-click unsubscribe link for a token.
func UnsubscribeURL(baseURL, token string) string {
	return fmt.Sprintf("%s/api/newsletter/unsubscribe?token=%s", baseURL, token)
}
