package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vidbudova/config"
	"vidbudova/models"
)

// statusCodeRe matches enhanced SMTP status codes in delivery reports.
var statusCodeRe = regexp.MustCompile(`\b([245])\.\d{1,3}\.\d{1,3}\b`)

// BounceWorker polls the bounce mailbox for delivery failure reports.
// Hard-bounced addresses are unsubscribed and their active drip
// enrollments cancelled, so dead mailboxes stop receiving sends.
type BounceWorker struct {
	DB     *gorm.DB
	Logger *logrus.Entry
	Cfg    config.BounceMailboxConfig
}

func NewBounceWorker(db *gorm.DB, logger *logrus.Entry, cfg config.BounceMailboxConfig) *BounceWorker {
	return &BounceWorker{
		DB:     db,
		Logger: logger,
		Cfg:    cfg,
	}
}

func (bw *BounceWorker) Start(ctx context.Context) {
	bw.Logger.Info("Bounce worker started")

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.Logger.Info("Bounce worker shutting down")
			return
		case <-ticker.C:
			if err := bw.fetchBounces(); err != nil {
				bw.Logger.WithError(err).Error("Bounce fetch failed")
			}
		}
	}
}

func (bw *BounceWorker) fetchBounces() error {
	imapClient, err := bw.dial()
	if err != nil {
		return err
	}
	defer imapClient.Logout()

	if err := imapClient.Login(bw.Cfg.Username, bw.Cfg.Password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := imapClient.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{"\\Seen"}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		section := &imap.BodySectionName{}
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	for msg := range messages {
		if err := bw.processReport(msg); err != nil {
			bw.Logger.WithError(err).WithField("seq", msg.SeqNum).Warn("Failed to process bounce report")
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %w", err)
	}
	return nil
}

func (bw *BounceWorker) dial() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", bw.Cfg.Host, bw.Cfg.Port)

	var imapClient *client.Client
	var err error
	switch strings.ToUpper(bw.Cfg.Encryption) {
	case "SSL", "TLS":
		imapClient, err = client.DialTLS(addr, &tls.Config{ServerName: bw.Cfg.Host})
	case "STARTTLS":
		imapClient, err = client.Dial(addr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{ServerName: bw.Cfg.Host})
		}
	default:
		imapClient, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	return imapClient, nil
}

func (bw *BounceWorker) processReport(msg *imap.Message) error {
	if msg.Body == nil {
		return fmt.Errorf("message body not found")
	}
	section := &imap.BodySectionName{}
	literal := msg.GetBody(section)
	if literal == nil {
		return fmt.Errorf("message body not found")
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return fmt.Errorf("failed to create message reader: %w", err)
	}

	failedRecipient := mr.Header.Get("X-Failed-Recipients")

	var bodyText strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		if _, ok := p.Header.(*mail.InlineHeader); ok {
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}
			bodyText.Write(b)
		}
	}

	body := bodyText.String()
	if failedRecipient == "" {
		failedRecipient = extractFailedRecipient(body)
	}
	if failedRecipient == "" {
		// Not a delivery report we can attribute to an address.
		return nil
	}

	bounceType, code := ClassifyBounce(body)

	bounce := models.Bounce{
		Email:          strings.ToLower(strings.TrimSpace(failedRecipient)),
		Type:           bounceType,
		Code:           code,
		DiagnosticCode: truncate(body, 500),
	}
	if err := bw.DB.Create(&bounce).Error; err != nil {
		return fmt.Errorf("failed to save bounce: %w", err)
	}

	if bounceType == "hard" {
		return bw.suppress(bounce.Email)
	}
	return nil
}

// suppress unsubscribes a hard-bounced address and cancels its drips.
func (bw *BounceWorker) suppress(email string) error {
	if err := bw.DB.Model(&models.NewsletterSubscriber{}).
		Where("email = ? AND subscribed = ?", email, true).
		Updates(map[string]interface{}{
			"subscribed":      false,
			"unsubscribed_at": time.Now(),
		}).Error; err != nil {
		return err
	}

	if err := CancelEnrollmentsForEmail(bw.DB, email); err != nil {
		return err
	}

	bw.Logger.WithField("email", email).Info("Hard bounce: address suppressed")
	return nil
}

// ClassifyBounce inspects a delivery report body and returns the bounce
// type (hard or soft) plus the enhanced status code when present.
func ClassifyBounce(body string) (bounceType, code string) {
	match := statusCodeRe.FindString(body)
	if match != "" && strings.HasPrefix(match, "5") {
		return "hard", match
	}
	if match != "" {
		return "soft", match
	}

	lowered := strings.ToLower(body)
	for _, marker := range []string{"user unknown", "no such user", "mailbox unavailable", "does not exist"} {
		if strings.Contains(lowered, marker) {
			return "hard", ""
		}
	}
	return "soft", ""
}

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

func extractFailedRecipient(body string) string {
	idx := strings.Index(body, "Final-Recipient:")
	if idx >= 0 {
		if m := emailRe.FindString(body[idx:]); m != "" {
			return m
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
