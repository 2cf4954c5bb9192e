package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PaymentStatus tracks settlement of a mess bill.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// Rank orders payment states; a bill never moves to a lower rank.
func (p PaymentStatus) Rank() int {
	switch p {
	case PaymentPending:
		return 0
	case PaymentPartial:
		return 1
	case PaymentPaid:
		return 2
	}
	return -1
}

// Charge is a named amount added to or subtracted from a bill.
type Charge struct {
	Description string  `json:"description" validate:"required,max=200"`
	Amount      float64 `json:"amount" validate:"gte=0"`
}

// Charges is stored as a JSONB array.
type Charges []Charge

// Value implements driver.Valuer.
func (c Charges) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *Charges) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Charges{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("charges: unsupported type %T", src)
	}
	return json.Unmarshal(raw, c)
}

// Sum adds every charge amount.
func (c Charges) Sum() float64 {
	var total float64
	for _, ch := range c {
		total += ch.Amount
	}
	return total
}

// MessRate is the tariff for one month.
type MessRate struct {
	ID            string    `db:"id" json:"id"`
	Month         int       `db:"month" json:"month"`
	Year          int       `db:"year" json:"year"`
	DailyRate     float64   `db:"daily_rate" json:"dailyRate"`
	BreakfastRate float64   `db:"breakfast_rate" json:"breakfastRate"`
	LunchRate     float64   `db:"lunch_rate" json:"lunchRate"`
	DinnerRate    float64   `db:"dinner_rate" json:"dinnerRate"`
	UpdatedBy     *string   `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
	IsDefault     bool      `db:"-" json:"isDefault,omitempty"`
}

// MessBill is one student's bill for a month.
type MessBill struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"studentId"`
	Month         int           `db:"month" json:"month"`
	Year          int           `db:"year" json:"year"`
	TotalDays     int           `db:"total_days" json:"totalDays"`
	Rate          float64       `db:"rate" json:"rate"`
	ExtraCharges  Charges       `db:"extra_charges" json:"extraCharges"`
	Deductions    Charges       `db:"deductions" json:"deductions"`
	TotalAmount   float64       `db:"total_amount" json:"totalAmount"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"paymentStatus"`
	AmountPaid    float64       `db:"amount_paid" json:"amountPaid"`
	PaidAt        *time.Time    `db:"paid_at" json:"paidAt,omitempty"`
	Remarks       *string       `db:"remarks" json:"remarks,omitempty"`
	GeneratedBy   string        `db:"generated_by" json:"generatedBy"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updatedAt"`

	StudentName      string `db:"student_name" json:"studentName,omitempty"`
	StudentCollegeID string `db:"student_college_id" json:"studentCollegeId,omitempty"`
}

// MessBillFilter narrows bill listings.
type MessBillFilter struct {
	StudentID     string
	Month         int
	Year          int
	PaymentStatus *PaymentStatus
	Page          int
	PageSize      int
}

// MessBillTotals aggregates amounts over a filtered bill set.
type MessBillTotals struct {
	Count       int     `db:"count" json:"count"`
	TotalAmount float64 `db:"total_amount" json:"totalAmount"`
	AmountPaid  float64 `db:"amount_paid" json:"amountPaid"`
	Outstanding float64 `db:"outstanding" json:"outstanding"`
}

// UpsertMessRateRequest creates or edits a month's rate.
type UpsertMessRateRequest struct {
	Month         int     `json:"month" validate:"required,min=1,max=12"`
	Year          int     `json:"year" validate:"required,min=2000,max=2100"`
	DailyRate     float64 `json:"dailyRate" validate:"required,gt=0"`
	BreakfastRate float64 `json:"breakfastRate" validate:"gte=0"`
	LunchRate     float64 `json:"lunchRate" validate:"gte=0"`
	DinnerRate    float64 `json:"dinnerRate" validate:"gte=0"`
}

// UpdateMessRateRequest edits rate amounts of an existing record.
type UpdateMessRateRequest struct {
	DailyRate     *float64 `json:"dailyRate" validate:"omitempty,gt=0"`
	BreakfastRate *float64 `json:"breakfastRate" validate:"omitempty,gte=0"`
	LunchRate     *float64 `json:"lunchRate" validate:"omitempty,gte=0"`
	DinnerRate    *float64 `json:"dinnerRate" validate:"omitempty,gte=0"`
}

// RateUpdateResult reports the edited rate and how many bills were recomputed.
type RateUpdateResult struct {
	Rate         *MessRate `json:"rate"`
	BillsUpdated int       `json:"billsUpdated"`
}

// GenerateBillRequest generates one student's bill.
type GenerateBillRequest struct {
	StudentID    string   `json:"studentId" validate:"required,uuid"`
	Month        int      `json:"month" validate:"required,min=1,max=12"`
	Year         int      `json:"year" validate:"required,min=2000,max=2100"`
	ExtraCharges []Charge `json:"extraCharges" validate:"omitempty,dive"`
	Deductions   []Charge `json:"deductions" validate:"omitempty,dive"`
	Remarks      string   `json:"remarks" validate:"omitempty,max=500"`
}

// BulkGenerateRequest generates bills for every active student.
type BulkGenerateRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
}

// BulkFailure names a student whose bill could not be generated.
type BulkFailure struct {
	StudentID string `json:"studentId"`
	Error     string `json:"error"`
}

// BulkGenerateResult partitions the student set by outcome.
type BulkGenerateResult struct {
	Generated []MessBill    `json:"generated"`
	Skipped   []string      `json:"skipped"`
	Failed    []BulkFailure `json:"failed"`
	Counts    BulkCounts    `json:"counts"`
}

// BulkCounts summarises a bulk run.
type BulkCounts struct {
	Total     int `json:"total"`
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// UpdateBillRequest edits the inputs of a bill.
type UpdateBillRequest struct {
	TotalDays    *int      `json:"totalDays" validate:"omitempty,min=0,max=31"`
	Rate         *float64  `json:"rate" validate:"omitempty,gte=0"`
	ExtraCharges *[]Charge `json:"extraCharges" validate:"omitempty,dive"`
	Deductions   *[]Charge `json:"deductions" validate:"omitempty,dive"`
	Remarks      *string   `json:"remarks" validate:"omitempty,max=500"`
}

// UpdatePaymentRequest records a payment state change.
type UpdatePaymentRequest struct {
	PaymentStatus PaymentStatus `json:"paymentStatus" validate:"required,oneof=pending partial paid"`
	AmountPaid    *float64      `json:"amountPaid" validate:"omitempty,gte=0"`
}

// ExportBillsRequest asks for a month's bill statement.
type ExportBillsRequest struct {
	Month  int    `json:"month" validate:"required,min=1,max=12"`
	Year   int    `json:"year" validate:"required,min=2000,max=2100"`
	Format string `json:"format" validate:"omitempty,oneof=csv pdf"`
}

// ExportResult points at a stored statement.
type ExportResult struct {
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Rows      int       `json:"rows"`
}
