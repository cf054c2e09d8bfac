/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package redislock is a Redis-backed exclusivity guard that
// pkg/errwatch's App.InvestigateNow consults ahead of the Store's own
// markInvestigating check; the Scheduler's own dispatch does not use it
// (SPEC_FULL.md §4.9). It is a belt-and-braces guard against double-dispatch
// within one process, not a cross-process coordination mechanism.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the caller's token no longer
// matches the held lock (it expired and was re-acquired by someone else, or
// was never acquired by this caller).
var ErrNotHeld = errors.New("redislock: lock not held by this token")

const keyPrefix = "errwatch:investigation-lock:"

// releaseScript atomically checks the lock's current value against token
// before deleting it, so a caller can never release a lock it no longer
// holds (e.g. after its TTL expired and another process acquired it).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// InvestigationLock guards a single signature ID against concurrent
// investigation dispatch using a Redis SETNX-with-TTL mutex per ID.
type InvestigationLock struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs an InvestigationLock. ttl bounds how long a lock survives
// if the holder crashes without releasing it.
func New(client *redis.Client, ttl time.Duration) *InvestigationLock {
	return &InvestigationLock{client: client, ttl: ttl}
}

// Acquire attempts to lock signatureID, returning a token to pass to
// Release and true on success, or an empty token and false if another
// caller already holds the lock.
func (l *InvestigationLock) Acquire(ctx context.Context, signatureID string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, keyPrefix+signatureID, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redislock: acquire %s: %w", signatureID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock on signatureID if and only if token is still the
// current holder. Returns ErrNotHeld if the lock had already expired and
// been taken by someone else, or was released already.
func (l *InvestigationLock) Release(ctx context.Context, signatureID, token string) error {
	result, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + signatureID}, token).Int64()
	if err != nil {
		return fmt.Errorf("redislock: release %s: %w", signatureID, err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

// Locked reports whether signatureID currently has a held lock, for
// diagnostics and tests.
func (l *InvestigationLock) Locked(ctx context.Context, signatureID string) (bool, error) {
	n, err := l.client.Exists(ctx, keyPrefix+signatureID).Result()
	if err != nil {
		return false, fmt.Errorf("redislock: check %s: %w", signatureID, err)
	}
	return n > 0, nil
}
