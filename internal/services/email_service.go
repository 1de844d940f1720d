package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

// DefaultRecipientName is used when a company HR contact has no name.
const DefaultRecipientName = "Hiring Manager"

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Notification is everything the transport needs to email an application.
type Notification struct {
	RecipientEmail string
	RecipientName  string

	CandidateName  string
	CandidateEmail string
	CandidatePhone string
	Institution    string
	FieldOfStudy   string

	JobTitle    string
	CompanyName string

	Subject     string
	CoverLetter string
	CVViewURL   string
	CustomBody  string
	Attachments []Attachment
}

// NotificationDispatcher sends an application email. The outcome is binary:
// a nil error means the transport accepted the message.
type NotificationDispatcher interface {
	Send(ctx context.Context, n *Notification) (messageID string, err error)
}

// ResolveRecipient picks who receives the application email: the company's HR
// contact when the job has a company with an HR email, otherwise the employer contact.
// job.Company and job.Employer must be preloaded.
func ResolveRecipient(job *models.Job) (email, name string, err error) {
	if job.Company != nil && job.Company.HREmail != nil && strings.TrimSpace(*job.Company.HREmail) != "" {
		name = DefaultRecipientName
		if job.Company.HRName != nil && strings.TrimSpace(*job.Company.HRName) != "" {
			name = *job.Company.HRName
		}
		return strings.TrimSpace(*job.Company.HREmail), name, nil
	}

	if email = strings.TrimSpace(job.Employer.ContactEmail); email == "" {
		err := errors.Newf("job %d has no HR or employer contact email", job.ID)
		return "", "", errors.NotificationFailed(err)
	}
	name = job.Employer.ContactName
	if strings.TrimSpace(name) == "" {
		name = job.Employer.Name
	}
	return email, name, nil
}

// Body is the plain-text email body: the student's own text when given,
// otherwise the generated cover letter, followed by the contact block.
func (n *Notification) Body() string {
	var sb strings.Builder
	if strings.TrimSpace(n.CustomBody) != "" {
		sb.WriteString(strings.TrimSpace(n.CustomBody))
	} else {
		sb.WriteString(strings.TrimSpace(n.CoverLetter))
	}

	sb.WriteString("\n\n--\n")
	fmt.Fprintf(&sb, "Applicant: %s\n", n.CandidateName)
	fmt.Fprintf(&sb, "Email: %s\n", n.CandidateEmail)
	if n.CandidatePhone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", n.CandidatePhone)
	}
	if n.Institution != "" {
		fmt.Fprintf(&sb, "Institution: %s\n", n.Institution)
	}
	if n.FieldOfStudy != "" {
		fmt.Fprintf(&sb, "Field of study: %s\n", n.FieldOfStudy)
	}
	fmt.Fprintf(&sb, "Position: %s at %s\n", n.JobTitle, n.CompanyName)
	if n.CVViewURL != "" {
		fmt.Fprintf(&sb, "CV: %s\n", n.CVViewURL)
	}
	return sb.String()
}

// ComposeMIME renders n as an RFC 5322 message with attachments.
func ComposeMIME(n *Notification, from string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(n.Subject)
	if strings.Contains(from, "@") {
		h.SetAddressList("From", []*mail.Address{{Name: n.CandidateName, Address: from}})
	}
	h.SetAddressList("To", []*mail.Address{{Name: n.RecipientName, Address: n.RecipientEmail}})
	if n.CandidateEmail != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Name: n.CandidateName, Address: n.CandidateEmail}})
	}

	var buf bytes.Buffer
	body := n.Body()

	if len(n.Attachments) == 0 {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create message writer")
		}
		if _, err := io.WriteString(w, body); err != nil {
			return nil, errors.Wrap(err, "failed to write message body")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "failed to close message")
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create multipart writer")
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create inline part")
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	tw, err := iw.CreatePart(th)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create text part")
	}
	if _, err := io.WriteString(tw, body); err != nil {
		return nil, errors.Wrap(err, "failed to write message body")
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}

	for _, a := range n.Attachments {
		var ah mail.AttachmentHeader
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		ah.Set("Content-Type", ct)
		ah.Set("Content-Transfer-Encoding", "base64")
		ah.SetFilename(a.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create attachment %q", a.Filename)
		}
		if _, err := aw.Write(a.Data); err != nil {
			return nil, errors.Wrapf(err, "failed to write attachment %q", a.Filename)
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart message")
	}
	return buf.Bytes(), nil
}

// GmailDispatcher sends application emails through the Gmail API.
type GmailDispatcher struct {
	GmailClient *gmail.Service
	sender      string
	limiter     *rate.Limiter
	log         *zap.SugaredLogger
}

// NewGmailDispatcher paces sends to sendsPerSecond. sender is the Gmail user id ("me") or address.
func NewGmailDispatcher(client *gmail.Service, sender string, sendsPerSecond float64, log *zap.SugaredLogger) *GmailDispatcher {
	if sender == "" {
		sender = "me"
	}
	if sendsPerSecond <= 0 {
		sendsPerSecond = 1
	}
	return &GmailDispatcher{
		GmailClient: client,
		sender:      sender,
		limiter:     rate.NewLimiter(rate.Limit(sendsPerSecond), 1),
		log:         log,
	}
}

// Send composes and sends the email. Only rate-limit rejections are retried:
// Gmail refuses those before accepting the message, so a retry cannot duplicate it.
func (s *GmailDispatcher) Send(ctx context.Context, n *Notification) (string, error) {
	raw, err := ComposeMIME(n, s.sender, time.Now())
	if err != nil {
		return "", err
	}
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	var sent *gmail.Message
	err = retry(ctx, 3, time.Second, s.log, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		var e error
		sent, e = s.GmailClient.Users.Messages.Send(s.sender, msg).Context(ctx).Do()
		return e
	})
	if err != nil {
		return "", err
	}

	s.log.Infow("Application email sent", "to", n.RecipientEmail, "gmail_id", sent.Id, "attachments", len(n.Attachments))
	return sent.Id, nil
}

// DryRunDispatcher logs the composed email instead of sending it.
type DryRunDispatcher struct {
	log *zap.SugaredLogger
}

func NewDryRunDispatcher(log *zap.SugaredLogger) *DryRunDispatcher {
	return &DryRunDispatcher{log: log}
}

func (d *DryRunDispatcher) Send(_ context.Context, n *Notification) (string, error) {
	raw, err := ComposeMIME(n, "", time.Now())
	if err != nil {
		return "", err
	}
	id := "dry-run-" + uuid.NewString()
	d.log.Infow("Dry run: application email not sent",
		"to", n.RecipientEmail, "subject", n.Subject, "bytes", len(raw), "message_id", id)
	return id, nil
}

// retry executes f with exponential backoff, retrying only rate-limit errors.
func retry(ctx context.Context, attempts int, sleep time.Duration, log *zap.SugaredLogger, f func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = f(); err == nil {
			return nil
		}
		if !isRateLimitedError(err) || i == attempts-1 {
			return err
		}

		log.Warnw("Gmail rate limited, retrying", "error", err, "backoff", sleep)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep *= 2
	}
	return err
}

func isRateLimitedError(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == 429
	}
	return false
}
