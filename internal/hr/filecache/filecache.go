// Package filecache caches assembled employee files in Redis.
//
// The cache serves the public read path only; snapshot capture during a
// dispatch always reads through to the store so journal snapshots can never
// contain stale data. Every applied action invalidates the employee's entry.
package filecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"dossier/internal/hr/models"
	id "dossier/pkg/domain"
)

// Cache wraps a Redis client. A nil *Cache is a no-op, so callers never
// branch on whether Redis is configured.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a cache over client. Returns nil if client is nil.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func key(org id.OrgID, employee id.EmployeeID, timelineLimit int) string {
	return fmt.Sprintf("dossier:file:%s:%s:%d", org, employee, timelineLimit)
}

func invalidationPattern(org id.OrgID, employee id.EmployeeID) string {
	return fmt.Sprintf("dossier:file:%s:%s:*", org, employee)
}

// Get returns the cached file or nil on miss. Cache failures degrade to a
// miss; the store remains authoritative.
func (c *Cache) Get(ctx context.Context, org id.OrgID, employee id.EmployeeID, timelineLimit int) *models.EmployeeFile {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, key(org, employee, timelineLimit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "file cache read failed", "error", err.Error())
		}
		return nil
	}
	var file models.EmployeeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		c.logger.WarnContext(ctx, "file cache entry corrupt, dropping", "error", err.Error())
		return nil
	}
	return &file
}

// Set stores the assembled file.
func (c *Cache) Set(ctx context.Context, org id.OrgID, employee id.EmployeeID, timelineLimit int, file *models.EmployeeFile) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(file)
	if err != nil {
		c.logger.WarnContext(ctx, "file cache encode failed", "error", err.Error())
		return
	}
	if err := c.client.Set(ctx, key(org, employee, timelineLimit), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "file cache write failed", "error", err.Error())
	}
}

// Invalidate drops every cached variant for the employee.
func (c *Cache) Invalidate(ctx context.Context, org id.OrgID, employee id.EmployeeID) {
	if c == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, invalidationPattern(org, employee), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.WarnContext(ctx, "file cache invalidation failed", "error", err.Error())
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WarnContext(ctx, "file cache scan failed", "error", err.Error())
	}
}
