// Package users is the read-only identity directory the access-control
// surfaces resolve display names from. Account provisioning lives in
// the upstream identity service.
package users

import "time"

// User is one directory entry, mirrored from the identity service.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the name shown in admin surfaces, falling back to
// the email for entries without one.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
