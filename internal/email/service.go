// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

var stageChangeTemplate = template.Must(template.New("stageChange").Parse(
	`A deliverable reached a new approval stage.

Process: {{.ProcessName}}
Deliverable: {{.DeliverableCode}} ({{.DeliverableType}})
New stage: {{.StageLabel}}
Changed by: {{.Actor}}
`))

// StageChangeNotice is the payload for approval notifications.
type StageChangeNotice struct {
	ProcessName     string
	DeliverableCode string
	DeliverableType string
	StageLabel      string
	Actor           string
}

// SendStageChange notifies the recipients that a deliverable entered a
// new stage. Used for the client-approval handoff.
func (s *Service) SendStageChange(to []string, notice StageChangeNotice) error {
	var body bytes.Buffer
	if err := stageChangeTemplate.Execute(&body, notice); err != nil {
		return fmt.Errorf("render stage change notice: %w", err)
	}
	subject := fmt.Sprintf("[GRC] %s moved to %s", notice.DeliverableCode, notice.StageLabel)
	return s.SendEmail(to, subject, body.String())
}
