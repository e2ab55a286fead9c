package domain

import "time"

const NotificationTypeLateFee = "LATE_FEE"

type Notification struct {
	ID         int32             `json:"id"`
	UserID     int32             `json:"user_id"`
	BillID     int32             `json:"bill_id"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}
