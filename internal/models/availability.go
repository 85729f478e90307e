package models

import "time"

type Availability struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Busy      bool      `json:"busy"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}
