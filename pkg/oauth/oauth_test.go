package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/noah-isme/hostel-api/pkg/config"
)

func TestStateSignerRoundTrip(t *testing.T) {
	s := NewStateSigner("secret", time.Minute)
	state, err := s.Issue()
	require.NoError(t, err)
	assert.NoError(t, s.Verify(state))

	other := NewStateSigner("other", time.Minute)
	assert.ErrorIs(t, other.Verify(state), ErrInvalidState)
	assert.ErrorIs(t, s.Verify("garbage"), ErrInvalidState)
}

func TestStateSignerExpiry(t *testing.T) {
	s := NewStateSigner("secret", time.Minute)
	issued := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }
	state, err := s.Issue()
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	assert.ErrorIs(t, s.Verify(state), ErrInvalidState)
}

func TestGoogleProviderExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "at", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "g-1", "email": "asha@college.edu", "verified_email": true, "name": "Asha"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewGoogleProvider(config.OAuthConfig{GoogleClientID: "cid", GoogleClientSecret: "cs", GoogleRedirectURL: "http://localhost/cb", StateSecret: "secret"})
	p.config.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	p.userInfoURL = srv.URL + "/userinfo"

	authURL, err := p.AuthURL()
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	profile, err := p.Exchange(context.Background(), state, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "g-1", profile.ID)
	assert.Equal(t, "asha@college.edu", profile.Email)
	assert.True(t, profile.VerifiedEmail)

	_, err = p.Exchange(context.Background(), "forged", "the-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}
