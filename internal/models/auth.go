package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest is the self-registration payload.
type RegisterRequest struct {
	Name      string   `json:"name" validate:"required,min=2,max=100"`
	CollegeID string   `json:"collegeId" validate:"required,max=50"`
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=6,max=72"`
	Role      UserRole `json:"role" validate:"omitempty,oneof=student warden admin"`
	Phone     string   `json:"phone" validate:"omitempty,max=20"`
	Hostel    string   `json:"hostel" validate:"omitempty,max=50"`
	Block     string   `json:"block" validate:"omitempty,max=20"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	User                 UserInfo `json:"user"`
	VerificationRequired bool     `json:"verificationRequired"`
	ApprovalRequired     bool     `json:"approvalRequired"`
}

// VerifyEmailRequest submits a one-time code.
type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendOTPRequest asks for a fresh verification code.
type ResendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// LogoutRequest revokes a refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

// GoogleProfile is the subset of the Google userinfo document the API relies on.
type GoogleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// OAuthURLResponse carries the provider consent URL.
type OAuthURLResponse struct {
	URL string `json:"url"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	CollegeID       string         `json:"collegeId"`
	Email           string         `json:"email"`
	Role            UserRole       `json:"role"`
	ApprovalStatus  ApprovalStatus `json:"approvalStatus"`
	IsEmailVerified bool           `json:"isEmailVerified"`
	Hostel          string         `json:"hostel,omitempty"`
	Block           string         `json:"block,omitempty"`
	RoomNumber      string         `json:"roomNumber,omitempty"`
}

// NewUserInfo projects a user record into its public shape.
func NewUserInfo(u *User) UserInfo {
	info := UserInfo{
		ID:              u.ID,
		Name:            u.Name,
		CollegeID:       u.CollegeID,
		Email:           u.Email,
		Role:            u.Role,
		ApprovalStatus:  u.ApprovalStatus,
		IsEmailVerified: u.IsEmailVerified,
		Hostel:          u.HostelValue(),
		Block:           u.BlockValue(),
	}
	if u.RoomNumber != nil {
		info.RoomNumber = *u.RoomNumber
	}
	return info
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
