package datasource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorax/flowengine/internal/credential"
	"github.com/gorax/flowengine/internal/database/connectors"
)

// Loader implements executor.ConnectionLoader: given a connection id, it
// looks up the Connection row, then resolves its named credential through
// credential.Injector the same way action configs resolve a
// `{{credentials.name}}` reference, keeping the decrypted connection string
// out of the datasource_connections table entirely.
type Loader struct {
	repo     *Repository
	injector *credential.Injector
	tenantID string
}

func NewLoader(repo *Repository, injector *credential.Injector, tenantID string) *Loader {
	return &Loader{repo: repo, injector: injector, tenantID: tenantID}
}

// LoadConnectionString satisfies executor.ConnectionLoader.
func (l *Loader) LoadConnectionString(ctx context.Context, connectionID string) (connectors.DatabaseType, string, error) {
	conn, err := l.repo.Get(ctx, l.tenantID, connectionID)
	if err != nil {
		return "", "", fmt.Errorf("load connection %q: %w", connectionID, err)
	}

	injCtx := &credential.InjectionContext{TenantID: l.tenantID, AccessedBy: "executor"}
	ref := []byte(`"{{credentials.` + conn.CredentialName + `}}"`)
	result, err := l.injector.InjectCredentials(ctx, ref, injCtx)
	if err != nil {
		return "", "", fmt.Errorf("resolve credential %q for connection %q: %w", conn.CredentialName, connectionID, err)
	}

	var connStr string
	if err := json.Unmarshal(result.Config, &connStr); err != nil {
		return "", "", fmt.Errorf("decode resolved connection string: %w", err)
	}

	return connectors.DatabaseType(conn.DatabaseType), connStr, nil
}
