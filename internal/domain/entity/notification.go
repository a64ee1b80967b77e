package entity

import "time"

// Notification is an in-app message created on each hand-off
type Notification struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a read-only projection of the administration module's user record
type User struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id,omitempty"`
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
}
