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

package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/triagectl/errwatch/internal/store/redislock"
)

func TestRedisLock(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Investigation Lock Suite")
}

var _ = Describe("InvestigationLock", func() {
	var (
		ctx         context.Context
		redisServer *miniredis.Miniredis
		client      *redis.Client
		lock        *redislock.InvestigationLock
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		redisServer, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		client = redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
		lock = redislock.New(client, 30*time.Second)
	})

	AfterEach(func() {
		client.Close()
		redisServer.Close()
	})

	Context("when no one holds the lock", func() {
		It("grants acquisition", func() {
			token, ok, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(token).NotTo(BeEmpty())

			held, err := lock.Locked(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeTrue())
		})
	})

	Context("when the lock is already held", func() {
		It("refuses a second acquisition", func() {
			_, ok1, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok1).To(BeTrue())

			_, ok2, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok2).To(BeFalse())
		})

		It("grants acquisition on a different signature ID", func() {
			_, ok1, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok1).To(BeTrue())

			_, ok2, err := lock.Acquire(ctx, "sig-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok2).To(BeTrue())
		})
	})

	Describe("Release", func() {
		It("frees the lock so it can be re-acquired", func() {
			token, ok, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			Expect(lock.Release(ctx, "sig-1", token)).To(Succeed())

			_, ok2, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok2).To(BeTrue())
		})

		It("refuses to release with the wrong token", func() {
			_, ok, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			err = lock.Release(ctx, "sig-1", "not-the-real-token")
			Expect(err).To(MatchError(redislock.ErrNotHeld))

			held, err := lock.Locked(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(held).To(BeTrue())
		})

		It("returns ErrNotHeld for a lock that was never acquired", func() {
			err := lock.Release(ctx, "never-locked", "whatever")
			Expect(err).To(MatchError(redislock.ErrNotHeld))
		})
	})

	Describe("TTL expiry", func() {
		It("allows re-acquisition once the TTL has elapsed", func() {
			_, ok, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			redisServer.FastForward(31 * time.Second)

			_, ok2, err := lock.Acquire(ctx, "sig-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok2).To(BeTrue())
		})
	})
})
