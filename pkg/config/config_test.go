package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:      EnvDevelopment,
		Database: DatabaseConfig{Host: "localhost", Name: "hostel"},
		JWT:      JWTConfig{Secret: "secret"},
		Auth:     AuthConfig{OrgEmailDomain: "@college.edu"},
		Email:    EmailConfig{Provider: EmailProviderLog},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateListsMissingSettings(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = ""
	cfg.Auth.OrgEmailDomain = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "ORG_EMAIL_DOMAIN")
}

func TestValidateSendGridRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Email.Provider = EmailProviderSendGrid

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SENDGRID_API_KEY")
	assert.Contains(t, err.Error(), "EMAIL_FROM")
}

func TestValidateRejectsLogMailerInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Env = EnvProduction

	require.Error(t, cfg.Validate())
}

func TestValidateGoogleOAuthRequiresClient(t *testing.T) {
	cfg := validConfig()
	cfg.OAuth.GoogleEnabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_CLIENT_ID")
	assert.Contains(t, err.Error(), "GOOGLE_REDIRECT_URL")
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "@college.edu", normalizeDomain(" College.EDU "))
	assert.Equal(t, "@college.edu", normalizeDomain("@college.edu"))
	assert.Equal(t, "", normalizeDomain("  "))
}
