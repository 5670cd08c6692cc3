package domain

import "time"

// User is a directory entry for an account owner. The service only reads
// users; provisioning them belongs to the surrounding system.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
