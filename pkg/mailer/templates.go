package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`<p>Hi {{.Name}},</p>
<p>Your hostel portal verification code is:</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>
<p>The code expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>`))

var approvalTemplate = template.Must(template.New("approval").Parse(`<p>Hi {{.Name}},</p>
{{if .Approved}}<p>Your hostel portal account has been approved. You can now sign in.</p>
{{else}}<p>Your hostel portal account request was not approved.</p>{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
{{end}}`))

// VerificationMessage renders the email carrying a one-time verification code.
func VerificationMessage(to, name, code string, ttl time.Duration) (Message, error) {
	minutes := int(ttl.Minutes())
	var buf bytes.Buffer
	data := struct {
		Name    string
		Code    string
		Minutes int
	}{name, code, minutes}
	if err := verificationTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{
		To:      to,
		ToName:  name,
		Subject: "Verify your hostel portal email",
		Text:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes),
		HTML:    buf.String(),
	}, nil
}

// ApprovalMessage renders the account decision notice.
func ApprovalMessage(to, name string, approved bool, reason string) (Message, error) {
	var buf bytes.Buffer
	data := struct {
		Name     string
		Approved bool
		Reason   string
	}{name, approved, reason}
	if err := approvalTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render approval email: %w", err)
	}
	subject := "Your hostel portal account was approved"
	text := "Your account has been approved. You can now sign in."
	if !approved {
		subject = "Your hostel portal account request"
		text = "Your account request was not approved."
		if reason != "" {
			text += " Reason: " + reason
		}
	}
	return Message{To: to, ToName: name, Subject: subject, Text: text, HTML: buf.String()}, nil
}
