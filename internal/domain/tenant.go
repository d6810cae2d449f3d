package domain

import (
	"fmt"
	"time"
)

// Organization is the tenant boundary. Fragment uniqueness, retrieval, and
// retention never cross it.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Project groups code fragments inside an organization; the project id is
// part of the code symbol uniqueness key.
type Project struct {
	ID        string
	OrgID     string
	Name      string
	CreatedAt time.Time
}

// APIKey binds an HTTP caller to an organization
type APIKey struct {
	ID        string
	OrgID     string
	Name      string
	KeyHash   string // Never store plaintext keys
	CreatedAt time.Time
	RevokedAt *time.Time
}

// NewOrganization creates a new Organization instance
func NewOrganization(id, name string, createdAt time.Time) *Organization {
	return &Organization{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
	}
}

// NewProject creates a new Project instance
func NewProject(id, orgID, name string, createdAt time.Time) *Project {
	return &Project{
		ID:        id,
		OrgID:     orgID,
		Name:      name,
		CreatedAt: createdAt,
	}
}

// NewAPIKey creates a new APIKey instance
func NewAPIKey(id, orgID, name, keyHash string, createdAt time.Time, revokedAt *time.Time) *APIKey {
	return &APIKey{
		ID:        id,
		OrgID:     orgID,
		Name:      name,
		KeyHash:   keyHash,
		CreatedAt: createdAt,
		RevokedAt: revokedAt,
	}
}

// IsRevoked returns true if the API key has been revoked
func (a *APIKey) IsRevoked() bool {
	return a.RevokedAt != nil
}

// ValidateOrganization validates an Organization instance
func ValidateOrganization(o *Organization) error {
	if o == nil {
		return fmt.Errorf("organization cannot be nil")
	}

	if o.ID == "" {
		return fmt.Errorf("organization ID is required")
	}

	if o.Name == "" {
		return fmt.Errorf("organization Name is required")
	}

	return nil
}

// ValidateProject validates a Project instance
func ValidateProject(p *Project) error {
	if p == nil {
		return fmt.Errorf("project cannot be nil")
	}

	if p.ID == "" {
		return fmt.Errorf("project ID is required")
	}

	if p.OrgID == "" {
		return fmt.Errorf("project OrgID is required")
	}

	if p.Name == "" {
		return fmt.Errorf("project Name is required")
	}

	return nil
}

// ValidateAPIKey validates an APIKey instance
func ValidateAPIKey(a *APIKey) error {
	if a == nil {
		return fmt.Errorf("api key cannot be nil")
	}

	if a.ID == "" {
		return fmt.Errorf("api key ID is required")
	}

	if a.OrgID == "" {
		return fmt.Errorf("api key OrgID is required")
	}

	if a.Name == "" {
		return fmt.Errorf("api key Name is required")
	}

	if a.KeyHash == "" {
		return fmt.Errorf("api key KeyHash is required")
	}

	return nil
}
