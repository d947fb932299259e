package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository persists Connections, grounded on internal/credential.Repository's
// per-transaction RLS idiom (set_config('app.current_tenant_id', ...) inside
// the same transaction as the query, so row-level security policies scope
// every statement to the caller's tenant).
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) withTenant(ctx context.Context, tenantID string, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "SELECT set_config('app.current_tenant_id', $1, true)", tenantID); err != nil {
		return fmt.Errorf("failed to set tenant context: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Create inserts a new connection, minting an id if conn.ID is empty.
func (r *Repository) Create(ctx context.Context, conn *Connection) (*Connection, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}

	query := `INSERT INTO datasource_connections
		(id, tenant_id, name, database_type, credential_name, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.withTenant(ctx, conn.TenantID, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, query, conn.ID, conn.TenantID, conn.Name, conn.DatabaseType, conn.CredentialName, conn.CreatedBy)
		return row.Scan(&conn.CreatedAt, &conn.UpdatedAt)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return conn, nil
}

// Get retrieves one connection by id, tenant-scoped.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*Connection, error) {
	var conn Connection
	err := r.withTenant(ctx, tenantID, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &conn, `SELECT * FROM datasource_connections WHERE id = $1 AND tenant_id = $2`, id, tenantID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// List returns every connection belonging to tenantID.
func (r *Repository) List(ctx context.Context, tenantID string) ([]*Connection, error) {
	var conns []*Connection
	err := r.withTenant(ctx, tenantID, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &conns, `SELECT * FROM datasource_connections WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// Delete removes a connection, invalidating any cached pooled handle for it
// is the caller's responsibility (see executor.DatasourceCache.Invalidate).
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	return r.withTenant(ctx, tenantID, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM datasource_connections WHERE id = $1 AND tenant_id = $2`, id, tenantID)
		if err != nil {
			return fmt.Errorf("failed to delete connection: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
