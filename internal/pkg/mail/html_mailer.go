// Package mail renders citizen notification mails and sends them via SMTP.
package mail

import (
	"bytes"
	"fmt"

	"github.com/gofiber/template/html/v2"
)

// Mail template names under views/mails.
const (
	TemplateRequestsToProcess     = "mails/requests-to-process"
	TemplateSubscriptionValidated = "mails/subscription-validation"
	TemplateSubscriptionRejected  = "mails/subscription-rejection"
)

// HTMLMailer renders a named template and sends the result as an HTML mail.
type HTMLMailer struct {
	engine *html.Engine
}

// NewHTMLMailer loads the mail templates from dir (expects a mails/
// subdirectory).
func NewHTMLMailer(dir string) (*HTMLMailer, error) {
	engine := html.New(dir, ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("mail: load templates: %w", err)
	}
	return &HTMLMailer{engine: engine}, nil
}

// SendMailAsHTML renders templateName with data and mails it to the
// recipient.
func (m *HTMLMailer) SendMailAsHTML(to, subject, templateName string, data map[string]interface{}) error {
	var body bytes.Buffer
	if err := m.engine.Render(&body, templateName, data); err != nil {
		return fmt.Errorf("mail: render %s: %w", templateName, err)
	}
	return SendMail(to, subject, body.String())
}
