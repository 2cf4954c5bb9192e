package service

import (
	"encoding/json"
	"strings"

	"github.com/noah-isme/hostel-api/internal/models"
)

func strPtr(value string) *string {
	return &value
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func userIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	return strPtr(actor.UserID)
}

// auditValues encodes v for the audit log; encoding failures degrade to an empty payload.
func auditValues(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
