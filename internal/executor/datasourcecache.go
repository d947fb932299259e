package executor

import (
	"context"
	"sync"

	"github.com/gorax/flowengine/internal/database/connectors"
)

// ConnectionLoader fetches the connection config needed to dial a pooled
// handle for id; it is the thin seam onto the (out-of-core) connectors CRUD
// repository.
type ConnectionLoader interface {
	LoadConnectionString(ctx context.Context, connectionID string) (connectors.DatabaseType, string, error)
}

// DatasourceCache is the thread-safe id-keyed connection-pool cache of
// spec §4.13, shaped on internal/credential.dataKeyCache's RWMutex+map
// idiom: Get builds and caches lazily, Invalidate evicts and closes.
type DatasourceCache struct {
	mu      sync.RWMutex
	entries map[string]connectors.Connector
	loader  ConnectionLoader
	factory func(connectors.DatabaseType) (connectors.Connector, error)
}

// NewDatasourceCache builds a cache that resolves connection strings via
// loader and constructs pooled handles via factory (normally
// connectors.ConnectorFactory.CreateConnector).
func NewDatasourceCache(loader ConnectionLoader, factory func(connectors.DatabaseType) (connectors.Connector, error)) *DatasourceCache {
	return &DatasourceCache{
		entries: make(map[string]connectors.Connector),
		loader:  loader,
		factory: factory,
	}
}

// Get returns the cached connector for connectionID, building and caching
// it on first access.
func (c *DatasourceCache) Get(ctx context.Context, connectionID string) (connectors.Connector, error) {
	c.mu.RLock()
	if conn, ok := c.entries[connectionID]; ok {
		c.mu.RUnlock()
		return conn, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.entries[connectionID]; ok {
		return conn, nil
	}

	dbType, connStr, err := c.loader.LoadConnectionString(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	conn, err := c.factory(dbType)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx, connStr); err != nil {
		return nil, err
	}

	c.entries[connectionID] = conn
	return conn, nil
}

// Invalidate removes connectionID from the cache and closes the evicted
// handle. Required after the connection's underlying record is updated or
// deleted, otherwise a stale pool would keep serving with obsolete
// credentials.
func (c *DatasourceCache) Invalidate(connectionID string) error {
	c.mu.Lock()
	conn, ok := c.entries[connectionID]
	delete(c.entries, connectionID)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return conn.Close()
}
