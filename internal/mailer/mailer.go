// Package mailer delivers password reset links.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	"github.com/nkiryanov/authkeeper/internal/logger"
)

const (
	defaultAppName     = "Authkeeper"
	defaultFrontendURL = "http://localhost:3000"
	defaultSMTPPort    = 587
)

// Sender delivers reset token to the user
type Sender interface {
	SendResetLink(ctx context.Context, to string, token string) error
}

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string

	// Reset link points to the frontend page: <FrontendURL>/reset-password?token=...
	FrontendURL string
	AppName     string
}

// SMTP delivery possible only with host and sender address
func (c Config) Configured() bool {
	return c.Host != "" && c.FromEmail != ""
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultSMTPPort
	}
	if c.FrontendURL == "" {
		c.FrontendURL = defaultFrontendURL
	}
	if c.AppName == "" {
		c.AppName = defaultAppName
	}
	if c.FromName == "" {
		c.FromName = c.AppName
	}
	return c
}

// Pick SMTP sender if it configured, otherwise one only logging the skip
func New(cfg Config, l logger.Logger) (Sender, error) {
	if !cfg.Configured() {
		l.Warn("SMTP not configured, password reset emails will not be sent")
		return NewLogSender(l), nil
	}
	return NewSMTPSender(cfg)
}

func ResetLink(frontendURL string, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

type resetEmail struct {
	Subject string
	Text    string
	HTML    string
}

type resetEmailData struct {
	AppName string
	Link    string
}

var resetTextTemplate = texttemplate.Must(texttemplate.New("text").Parse(`Hello,

We received a request to reset your {{.AppName}} password.
Follow the link below to choose a new one:

{{.Link}}

If you didn't ask for it, just ignore this email. The link expires soon and can be used once.
`))

var resetHTMLTemplate = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
<body>
  <p>Hello,</p>
  <p>We received a request to reset your {{.AppName}} password.</p>
  <p><a href="{{.Link}}">Reset password</a></p>
  <p>If you didn't ask for it, just ignore this email. The link expires soon and can be used once.</p>
</body>
</html>
`))

func renderResetEmail(appName string, link string) (resetEmail, error) {
	data := resetEmailData{AppName: appName, Link: link}

	var text, html bytes.Buffer
	if err := resetTextTemplate.Execute(&text, data); err != nil {
		return resetEmail{}, fmt.Errorf("render text email: %w", err)
	}
	if err := resetHTMLTemplate.Execute(&html, data); err != nil {
		return resetEmail{}, fmt.Errorf("render html email: %w", err)
	}

	return resetEmail{
		Subject: fmt.Sprintf("%s password reset", appName),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
