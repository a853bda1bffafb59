// Copyright (c) 2026 Velora. All rights reserved.
// Author: dev@veloragems.com

package identity

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/veloragems/velora/internal/platform/constants"
)

// # Redis Login Throttle

// RedisLoginThrottle counts failed login attempts per (email, IP) using
// INCR with a sliding-start TTL window. Counters live only in Redis: losing
// them on a restart merely resets the budget, which is acceptable for a
// brute-force guard.
type RedisLoginThrottle struct {
	client *redis.Client
}

// NewRedisLoginThrottle creates a [RedisLoginThrottle] backed by the shared client.
func NewRedisLoginThrottle(client *redis.Client) *RedisLoginThrottle {
	return &RedisLoginThrottle{client: client}
}

// key builds the counter key. Email is already canonicalized by the caller.
func (throttle *RedisLoginThrottle) key(email, ip string) string {
	return constants.RedisPrefixLoginThrottle + email + ":" + ip
}

// TooManyAttempts reports whether the pair has exhausted its window budget.
func (throttle *RedisLoginThrottle) TooManyAttempts(context context.Context, email, ip string) (bool, error) {
	attempts, err := throttle.client.Get(context, throttle.key(email, ip)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("login_throttle_get_failed: %w", err)
	}

	return attempts >= constants.LoginThrottleMaxAttempts, nil
}

// RecordFailure increments the pair's counter. The TTL is set only when the
// increment creates the key, so the window is anchored to the FIRST failure
// and cannot be extended indefinitely by continued attempts.
func (throttle *RedisLoginThrottle) RecordFailure(context context.Context, email, ip string) error {
	key := throttle.key(email, ip)

	attempts, err := throttle.client.Incr(context, key).Result()
	if err != nil {
		return fmt.Errorf("login_throttle_incr_failed: %w", err)
	}

	if attempts == 1 {
		if err := throttle.client.Expire(context, key, constants.LoginThrottleWindow).Err(); err != nil {
			return fmt.Errorf("login_throttle_expire_failed: %w", err)
		}
	}

	return nil
}

// Reset clears the pair's counter after a successful login.
func (throttle *RedisLoginThrottle) Reset(context context.Context, email, ip string) error {
	if err := throttle.client.Del(context, throttle.key(email, ip)).Err(); err != nil {
		return fmt.Errorf("login_throttle_reset_failed: %w", err)
	}
	return nil
}
