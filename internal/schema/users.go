package schema

import (
	"fmt"
	"net/mail"
	"strings"
)

// Table names as they appear on the wire.
const (
	TableUsers           = "Users"
	TableRoles           = "Roles"
	TableCategories      = "Categories"
	TableVocabularyItems = "VocabularyItems"
	TableCourses         = "Courses"
	TableLessons         = "Lessons"
	TableExercises       = "Exercises"
)

// User is an application account. Credentials live with the identity provider,
// not here.
type User struct {
	Meta

	Username    string   `json:"Username"`
	Email       string   `json:"Email,omitempty"`
	DisplayName string   `json:"DisplayName,omitempty"`
	Roles       []string `json:"Roles,omitempty"`
	IsActive    bool     `json:"IsActive"`
}

// Validate checks if the User has valid field values.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if len(u.Username) > 100 {
		return fmt.Errorf("username must be 100 characters or less (got %d)", len(u.Username))
	}
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return fmt.Errorf("invalid email %q: %w", u.Email, err)
		}
	}
	return nil
}

// Role is a named permission group assigned to users.
type Role struct {
	Meta

	Name        string   `json:"Name"`
	Description string   `json:"Description,omitempty"`
	Permissions []string `json:"Permissions,omitempty"`
}

// Validate checks if the Role has valid field values.
func (r *Role) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > 50 {
		return fmt.Errorf("name must be 50 characters or less (got %d)", len(r.Name))
	}
	return nil
}
