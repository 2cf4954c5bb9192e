package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/hostel-api/pkg/config"
)

func TestVerificationMessage(t *testing.T) {
	msg, err := VerificationMessage("a@college.edu", "<Asha>", "123456", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "a@college.edu", msg.To)
	assert.Contains(t, msg.HTML, "123456")
	assert.Contains(t, msg.HTML, "&lt;Asha&gt;")
	assert.Contains(t, msg.Text, "10 minutes")
}

func TestApprovalMessageRejected(t *testing.T) {
	msg, err := ApprovalMessage("a@college.edu", "Asha", false, "duplicate account")
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "duplicate account")
	assert.Contains(t, msg.Text, "Reason: duplicate account")
}

func TestNewSelectsProvider(t *testing.T) {
	assert.IsType(t, &SendGridMailer{}, New(config.EmailConfig{Provider: config.EmailProviderSendGrid, SendGridAPIKey: "k", From: "noreply@college.edu"}, nil))
	assert.IsType(t, &LogMailer{}, New(config.EmailConfig{Provider: config.EmailProviderLog}, nil))
}

func TestLogMailerRecordsMessage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	require.NoError(t, m.Send(context.Background(), Message{To: "a@college.edu", Subject: "hello"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "a@college.edu", logs.All()[0].ContextMap()["to"])
}
