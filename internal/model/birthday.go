package model

import "time"

// Birthday is one person's stored birthday entry. Only the month and day of
// Date drive recurrence; only the hour and minute of NotificationTime are
// used. Both serialize as RFC 3339 text so the stored collection round-trips.
type Birthday struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Date             time.Time `json:"date"`
	NotificationTime time.Time `json:"notificationTime"`
}
