package models

import (
	"strings"
	"time"
)

// Customer is the minimal projection the delivery pipeline needs.
// Full customer CRUD lives outside this service.
type Customer struct {
	ID               int        `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	Email            string     `json:"email" db:"email"`
	Phone            string     `json:"phone" db:"phone"`
	TotalSpending    float64    `json:"total_spending" db:"total_spending"`
	VisitCount       int        `json:"visit_count" db:"visit_count"`
	LastVisit        *time.Time `json:"last_visit,omitempty" db:"last_visit"`
	RegistrationDate time.Time  `json:"registration_date" db:"registration_date"`
	Segment          string     `json:"segment" db:"segment"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	Tags             []string   `json:"tags" db:"tags"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// FirstName returns the first whitespace-separated token of the name
func (c *Customer) FirstName() string {
	fields := strings.Fields(c.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Recipient returns the contact address for the given message type
func (c *Customer) Recipient(t MessageType) string {
	if t == MessageTypeSMS {
		return c.Phone
	}
	return c.Email
}

// HasTag checks tag membership
func (c *Customer) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
