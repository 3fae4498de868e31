package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// School is a local snapshot of a school owned by the school-management service.
// Populated via the roster sync worker.
type School struct {
	ID   string `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`

	Timestamps
}

// Student is a local snapshot of a student account. ID is the external user id
// carried in X-User-ID, so progress rows reference it directly.
// Only Approved students count towards school dashboards.
type Student struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	SchoolID  string    `gorm:"index;not null" json:"school_id"`
	Username  string    `gorm:"index" json:"username"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Approved  bool      `gorm:"default:false;index" json:"approved"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// DisplayName prefers "First Last", falling back to the username and then the id.
func (s Student) DisplayName() string {
	var parts []string
	if s.FirstName != nil && strings.TrimSpace(*s.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(*s.FirstName))
	}
	if s.LastName != nil && strings.TrimSpace(*s.LastName) != "" {
		parts = append(parts, strings.TrimSpace(*s.LastName))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if s.Username != "" {
		return s.Username
	}
	return s.ID
}
