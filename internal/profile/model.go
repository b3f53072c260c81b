package profile

import "time"

// Profile is the participant handle the chat core works with.
// It is created lazily the first time a verified user touches the chat API.
type Profile struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
