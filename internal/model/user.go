package model

import "time"

// UsernameMaxLength is the maximum length of a username.
const UsernameMaxLength = 150

// User owns tasks and API keys.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
	// TaskIDs holds the ids of tasks owned by the user, ascending.
	TaskIDs []int64
}
