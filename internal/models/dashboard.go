package models

import "time"

// DashboardStats aggregates counters for the staff dashboard.
type DashboardStats struct {
	Students              int       `db:"students" json:"students"`
	Wardens               int       `db:"wardens" json:"wardens"`
	PendingAccounts       int       `db:"pending_accounts" json:"pendingAccounts"`
	PendingAttendance     int       `db:"pending_attendance" json:"pendingAttendance"`
	TodayPresent          int       `db:"today_present" json:"todayPresent"`
	OpenComplaints        int       `db:"open_complaints" json:"openComplaints"`
	PendingWardenRequests int       `db:"pending_warden_requests" json:"pendingWardenRequests"`
	RoomsAvailable        int       `db:"rooms_available" json:"roomsAvailable"`
	MonthBilled           float64   `db:"month_billed" json:"monthBilled"`
	MonthOutstanding      float64   `db:"month_outstanding" json:"monthOutstanding"`
	Month                 int       `db:"-" json:"month"`
	Year                  int       `db:"-" json:"year"`
	GeneratedAt           time.Time `db:"-" json:"generatedAt"`
}
