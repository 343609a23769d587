package handler

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/scalpel-app/scalpel/pkg/response"
)

// KeyFunc extracts a rate-limiting key from a request.
type KeyFunc func(c *fiber.Ctx) string

// RateLimiter is a fixed-window counter, optionally persisted to the shared
// SQL database so limits survive restarts and apply across replicas. When
// the database is unavailable it degrades to in-memory counting rather than
// rejecting traffic.
type RateLimiter struct {
	windows  map[string]*windowCount
	mu       sync.Mutex
	limit    int
	window   time.Duration
	stopCh   chan struct{}
	keyFunc  KeyFunc
	db       *sql.DB
	scope    string
	stopOnce sync.Once
}

type windowCount struct {
	count     int
	windowEnd time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return newRateLimiter(limit, window, defaultKeyFunc, nil, "")
}

// NewPersistentRateLimiter creates a DB-backed limiter. The scope keeps
// counters from different routes apart when they share the same key.
func NewPersistentRateLimiter(db *sql.DB, scope string, limit int, window time.Duration) *RateLimiter {
	return newRateLimiter(limit, window, defaultKeyFunc, db, scope)
}

func NewPersistentRateLimiterWithKey(
	db *sql.DB,
	scope string,
	limit int,
	window time.Duration,
	keyFunc KeyFunc,
) *RateLimiter {
	return newRateLimiter(limit, window, keyFunc, db, scope)
}

func newRateLimiter(
	limit int,
	window time.Duration,
	keyFunc KeyFunc,
	db *sql.DB,
	scope string,
) *RateLimiter {
	if keyFunc == nil {
		keyFunc = defaultKeyFunc
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}

	rl := &RateLimiter{
		windows: make(map[string]*windowCount),
		limit:   limit,
		window:  window,
		stopCh:  make(chan struct{}),
		keyFunc: keyFunc,
		db:      db,
		scope:   scope,
	}
	go rl.cleanup()
	return rl
}

// IPAndUserKey combines the client IP with the authenticated user id, so an
// authenticated user cannot reset their budget by switching IPs and a shared
// IP does not starve distinct users.
func IPAndUserKey(c *fiber.Ctx) string {
	ip := c.IP()
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return ip
	}
	return ip + ":" + userID
}

func defaultKeyFunc(c *fiber.Ctx) string {
	return c.IP()
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.keyFunc(c)
		now := time.Now()

		if rl.db != nil {
			allowed, err := rl.allowPersistent(key, now)
			if err == nil {
				if !allowed {
					return response.TooManyRequests(c, "too many requests, please try again later")
				}
				return c.Next()
			}
			// Fall back to in-memory counting if persistent storage fails.
		}

		if !rl.allowInMemory(key, now) {
			return response.TooManyRequests(c, "too many requests, please try again later")
		}
		return c.Next()
	}
}

func (rl *RateLimiter) scopedKey(key string) string {
	return rl.scope + ":" + key
}

func (rl *RateLimiter) allowPersistent(key string, now time.Time) (bool, error) {
	scopedKey := rl.scopedKey(key)
	windowEnd := now.Add(rl.window)

	_, err := rl.db.Exec(`
		INSERT INTO rate_limit_counters (scope_key, count, window_end, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.window_end <= excluded.updated_at THEN 1
				ELSE rate_limit_counters.count + 1
			END,
			window_end = CASE
				WHEN rate_limit_counters.window_end <= excluded.updated_at THEN excluded.window_end
				ELSE rate_limit_counters.window_end
			END,
			updated_at = excluded.updated_at
	`, scopedKey, windowEnd, now)
	if err != nil {
		return false, err
	}

	var count int
	if err := rl.db.QueryRow(`SELECT count FROM rate_limit_counters WHERE scope_key = ?`, scopedKey).Scan(&count); err != nil {
		return false, err
	}
	return count <= rl.limit, nil
}

func (rl *RateLimiter) allowInMemory(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	info, exists := rl.windows[key]
	if !exists || now.After(info.windowEnd) {
		rl.windows[key] = &windowCount{
			count:     1,
			windowEnd: now.Add(rl.window),
		}
		return true
	}

	if info.count >= rl.limit {
		return false
	}

	info.count++
	return true
}

// cleanup periodically drops expired windows.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			rl.cleanupInMemory(now)
			rl.cleanupPersistent(now)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanupInMemory(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, info := range rl.windows {
		if now.After(info.windowEnd) {
			delete(rl.windows, key)
		}
	}
}

func (rl *RateLimiter) cleanupPersistent(now time.Time) {
	if rl.db == nil {
		return
	}
	_, _ = rl.db.Exec(`DELETE FROM rate_limit_counters WHERE window_end <= ?`, now)
}

// Stop terminates the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}
