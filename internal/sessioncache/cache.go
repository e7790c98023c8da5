// Package sessioncache memoizes resolved principals so the hot path does
// not hit the user store on every request. Entries are keyed by
// (subjectID, role): a role change produces a different key, so a stale
// entry can never authorize the old role.
package sessioncache

import (
	"fmt"
	"time"

	"github.com/sweemee/exam-server/internal/memcache"
	"github.com/sweemee/exam-server/internal/models"
)

type Cache struct {
	cache *memcache.Cache[models.Principal]
	ttl   time.Duration
}

func New(maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		cache: memcache.New[models.Principal](maxSize),
		ttl:   ttl,
	}
}

func (c *Cache) Get(subjectID uint, role models.Role) (models.Principal, bool) {
	return c.cache.Get(key(subjectID, role))
}

func (c *Cache) Set(p models.Principal) {
	c.cache.Set(key(p.ID, p.Role), p, c.ttl)
}

// Invalidate drops the cached principal; called on logout and on any
// role-changing administrative action.
func (c *Cache) Invalidate(subjectID uint, role models.Role) {
	c.cache.Delete(key(subjectID, role))
}

func (c *Cache) Purge() int {
	return c.cache.Purge()
}

func (c *Cache) Len() int {
	return c.cache.Len()
}

func key(subjectID uint, role models.Role) string {
	return fmt.Sprintf("%d:%s", subjectID, role)
}
