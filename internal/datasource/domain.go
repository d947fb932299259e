// Package datasource implements the spec's datasource/connection CRUD
// collaborator: named, tenant-scoped pointers at a database credential, kept
// separate from the credential's own encrypted value (internal/credential
// owns encryption; a Connection only names which credential and database
// type a node should resolve at execution time).
package datasource

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("connection not found")
	ErrInvalidInput  = errors.New("invalid connection input")
	ErrAlreadyExists = errors.New("connection already exists")
)

// Connection is a named, reusable pointer at a database credential. The
// actual connection string never lives here — CredentialName resolves
// through internal/credential.Injector at use time, so rotating or revoking
// the credential takes effect without touching this row.
type Connection struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	Name           string    `json:"name" db:"name"`
	DatabaseType   string    `json:"database_type" db:"database_type"`
	CredentialName string    `json:"credential_name" db:"credential_name"`
	CreatedBy      string    `json:"created_by" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

var validDatabaseTypes = map[string]bool{
	"postgresql": true,
	"mysql":      true,
	"sqlite":     true,
	"mongodb":    true,
}

func (c *Connection) Validate() error {
	if c.TenantID == "" || c.Name == "" || c.CredentialName == "" {
		return ErrInvalidInput
	}
	if !validDatabaseTypes[c.DatabaseType] {
		return ErrInvalidInput
	}
	return nil
}
