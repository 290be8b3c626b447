package model

import "time"

type PushSubscription struct {
	ID         int64     `json:"id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reminder is the scheduled trigger for one birthday. Exactly one row exists
// per record; deleting the record deletes the reminder, so nothing is left
// orphaned.
type Reminder struct {
	BirthdayID string    `json:"birthday_id"`
	Name       string    `json:"name"`
	NextFireAt time.Time `json:"next_fire_at"`
}
