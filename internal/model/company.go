// Package model defines the CRM records the importer reads and writes.
package model

import "time"

// Company is an account. Name is the natural key used for dedup.
type Company struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Timezone  string    `json:"timezone,omitempty" db:"timezone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Contact is a person, optionally attached to a company. Email is the natural
// key; contacts without one are keyed by first name, last name and phone.
type Contact struct {
	ID        int64     `json:"id" db:"id"`
	CompanyID *int64    `json:"company_id,omitempty" db:"company_id"`
	FirstName string    `json:"first_name,omitempty" db:"first_name"`
	LastName  string    `json:"last_name,omitempty" db:"last_name"`
	Email     string    `json:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Timezone  string    `json:"timezone,omitempty" db:"timezone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}
