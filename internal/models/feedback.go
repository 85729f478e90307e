package models

import "time"

type QCStatus string

const (
	QCPending QCStatus = "pending"
	QCPassed  QCStatus = "passed"
	QCRevise  QCStatus = "revise"
)

type CallFeedback struct {
	ID          int64          `json:"id"`
	BookingID   int64          `json:"booking_id"`
	Text        string         `json:"text"`
	ActionItems []string       `json:"action_items"`
	Ratings     map[string]int `json:"ratings"`
	QCStatus    QCStatus       `json:"qc_status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
