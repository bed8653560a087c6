package utils

import (
	"context"
	"sync"
	"time"
)

const blacklistPrefix = "jwt:blacklist:"

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.Mutex
)

// BlacklistToken revokes the token with the given jti until expiresAt.
// Redis is preferred; without it the entry lives in process memory.
func BlacklistToken(ctx context.Context, jti string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
		defer cancel()
		if err := rc.Set(ctx, blacklistPrefix+jti, "1", ttl).Err(); err == nil {
			return
		}
		Sugar.Warnf("redis blacklist failed for jti=%s, using memory", jti)
	}
	blacklistMu.Lock()
	blacklist[jti] = expiresAt
	pruneBlacklistLocked(time.Now())
	blacklistMu.Unlock()
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
		defer cancel()
		n, err := rc.Exists(ctx, blacklistPrefix+jti).Result()
		if err == nil && n > 0 {
			return true
		}
		// fail-open on Redis errors, but still consult the memory fallback
	}
	blacklistMu.Lock()
	defer blacklistMu.Unlock()
	exp, ok := blacklist[jti]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(blacklist, jti)
		return false
	}
	return true
}

func pruneBlacklistLocked(now time.Time) {
	for k, exp := range blacklist {
		if now.After(exp) {
			delete(blacklist, k)
		}
	}
}
