package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridEmail delivers attendance emails through a SendGrid dynamic
// template. The template owns subject and body; we only supply the
// personalization data.
type SendGridEmail struct {
	key        string
	from       *sgmail.Email
	templateID string
}

// NewSendGridEmail creates the sender. templateID is the SendGrid
// dynamic template for attendance alerts.
func NewSendGridEmail(key, fromName, fromEmail, templateID string) *SendGridEmail {
	return &SendGridEmail{
		key:        key,
		from:       sgmail.NewEmail(fromName, fromEmail),
		templateID: templateID,
	}
}

// SendAttendanceEmail sends one templated email.
func (s *SendGridEmail) SendAttendanceEmail(ctx context.Context, p EmailParams) error {
	pers := sgmail.NewPersonalization()
	pers.AddTos(sgmail.NewEmail(p.ToName, p.ToEmail))
	pers.SetDynamicTemplateData("student_name", p.StudentName)
	pers.SetDynamicTemplateData("status", p.Status)
	pers.SetDynamicTemplateData("time", p.Time)

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.SetTemplateID(s.templateID)
	m.AddPersonalizations(pers)

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid error %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
