package moderation

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"
	"workplacemapping/internal/metrics"

	"github.com/MakeNowJust/heredoc"
	"github.com/sirupsen/logrus"
)

const notifyTimeout = 10 * time.Second

// Mailer sends one multipart email.
type Mailer interface {
	SendHTMLEmail(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// EmailNotifier emails the moderator about new comments and authors about
// approvals. Sends run in the background and failures are only logged.
type EmailNotifier struct {
	mailer         Mailer
	moderatorEmail string
	siteURL        string
	log            *logrus.Entry

	// Dispatch runs a send. Defaults to a new goroutine.
	Dispatch func(func())
}

func NewEmailNotifier(mailer Mailer, moderatorEmail, siteURL string) *EmailNotifier {
	return &EmailNotifier{
		mailer:         mailer,
		moderatorEmail: moderatorEmail,
		siteURL:        strings.TrimSuffix(siteURL, "/"),
		log:            logging.For("notifier"),
	}
}

// NotifyCreation tells the moderator a comment is waiting.
func (n *EmailNotifier) NotifyCreation(ctx context.Context, c domain.Comment, post domain.Post) {
	kind := "Comment"
	if c.IsReply() {
		kind = "Reply"
	}
	subject := fmt.Sprintf("New %s on \"%s\"", kind, post.Title)
	n.send(ctx, "creation", n.moderatorEmail, subject, n.creationHTML(c, post, kind), n.creationText(c, post, kind))
}

// NotifyApproval tells the author their comment is live.
func (n *EmailNotifier) NotifyApproval(ctx context.Context, c domain.Comment, post domain.Post) {
	subject := fmt.Sprintf("Your comment on \"%s\" has been approved!", post.Title)
	n.send(ctx, "approval", c.AuthorEmail, subject, n.approvalHTML(c, post), n.approvalText(c, post))
}

func (n *EmailNotifier) send(ctx context.Context, kind, to, subject, htmlBody, textBody string) {
	ctx = context.WithoutCancel(ctx)
	entry := n.log.WithFields(logrus.Fields{"kind": kind, "to": to})

	job := func() {
		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		if err := n.mailer.SendHTMLEmail(sendCtx, to, subject, htmlBody, textBody); err != nil {
			metrics.RecordNotificationFailure(kind)
			entry.WithError(err).Error("comment notification failed")
			return
		}
		entry.Info("comment notification sent")
	}

	if n.Dispatch != nil {
		n.Dispatch(job)
		return
	}
	go job()
}

func (n *EmailNotifier) creationText(c domain.Comment, post domain.Post, kind string) string {
	website := "-"
	if c.AuthorWebsite != nil {
		website = *c.AuthorWebsite
	}
	return heredoc.Docf(`
		New %s on "%s"

		Author:  %s <%s>
		Website: %s
		Date:    %s

		%s

		This comment is pending moderation: %s/admin
	`, strings.ToLower(kind), post.Title, c.AuthorName, c.AuthorEmail, website,
		c.CreatedAt.UTC().Format(time.RFC1123), c.Content, n.siteURL)
}

func (n *EmailNotifier) creationHTML(c domain.Comment, post domain.Post, kind string) string {
	typeLabel := "New top-level comment"
	if c.IsReply() {
		typeLabel = "Reply to existing comment"
	}
	website := ""
	if c.AuthorWebsite != nil {
		w := html.EscapeString(*c.AuthorWebsite)
		website = fmt.Sprintf(`<p><strong>Website:</strong> <a href="%s">%s</a></p>`, w, w)
	}
	content := strings.ReplaceAll(html.EscapeString(c.Content), "\n", "<br>")

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="background: #2563eb; color: #fff; padding: 20px; text-align: center;">
    <h1>New %s Notification</h1>
    <p>Workplace Mapping Blog</p>
  </div>
  <div style="padding: 20px;">
    <p><strong>Post:</strong> %s</p>
    <p><strong>Type:</strong> %s</p>
    <p><strong>Author:</strong> %s</p>
    <p><strong>Email:</strong> %s</p>
    %s
    <div style="background: #f9f9f9; padding: 15px; border-radius: 8px; border-left: 4px solid #2563eb;">
      <p>%s</p>
    </div>
    <p><a href="%s/admin" style="background: #2563eb; color: #fff; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Moderate Comments</a></p>
    <p><strong>Status:</strong> This comment is pending moderation.</p>
  </div>
</body>
</html>`,
		kind,
		html.EscapeString(post.Title),
		typeLabel,
		html.EscapeString(c.AuthorName),
		html.EscapeString(c.AuthorEmail),
		website,
		content,
		html.EscapeString(n.siteURL),
	)
}

func (n *EmailNotifier) approvalText(c domain.Comment, post domain.Post) string {
	return heredoc.Docf(`
		Hi %s,

		Great news! Your comment on "%s" has been approved and is now live on our blog.

		Your comment:
		%s

		Best regards,
		Workplace Mapping
	`, c.AuthorName, post.Title, c.Content)
}

func (n *EmailNotifier) approvalHTML(c domain.Comment, post domain.Post) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <div style="background: #2563eb; color: #fff; padding: 20px; text-align: center;">
    <h1>Comment Approved!</h1>
    <p>Workplace Mapping Blog</p>
  </div>
  <div style="padding: 20px;">
    <p>Hi %s,</p>
    <p>Great news! Your comment on "<strong>%s</strong>" has been approved and is now live on our blog.</p>
    <div style="background: #f0f8ff; padding: 15px; border-radius: 8px; border-left: 4px solid #2563eb;">
      <p><strong>Your comment:</strong></p>
      <p>%s</p>
    </div>
    <p>Best regards,<br>Workplace Mapping</p>
  </div>
</body>
</html>`,
		html.EscapeString(c.AuthorName),
		html.EscapeString(post.Title),
		strings.ReplaceAll(html.EscapeString(c.Content), "\n", "<br>"),
	)
}
