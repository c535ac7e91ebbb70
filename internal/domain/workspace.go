package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is one project context in the dashboard's project switcher.
type Workspace struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	TenantID    string    `json:"tenant_id,omitempty"`
	DomainName  string    `json:"domain_name,omitempty"`
	IsDemo      bool      `json:"is_demo"`
	CreatedAt   time.Time `json:"created_at"`
}
