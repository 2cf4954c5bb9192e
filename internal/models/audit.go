package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister       = "REGISTER"
	AuditActionVerifyEmail    = "VERIFY_EMAIL"
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionOAuthLogin     = "OAUTH_LOGIN"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionUserApprove    = "USER_APPROVE"
	AuditActionUserReject     = "USER_REJECT"
	AuditActionUserStatus     = "USER_STATUS"
	AuditActionUserRole       = "USER_ROLE"
	AuditActionRateUpdate     = "MESS_RATE_UPDATE"
	AuditActionBillGenerate   = "MESS_BILL_GENERATE"
	AuditActionWardenDecision = "WARDEN_REQUEST_DECISION"
	AuditActionRoomAllocate   = "ROOM_ALLOCATE"
	AuditActionRoomVacate     = "ROOM_VACATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  []byte    `db:"old_values" json:"oldValues,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
