package resilience_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"verdict.app/engine/internal/resilience"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ = Describe("MemoryCache", func() {
	var (
		ctx   context.Context
		clock *manualClock
		cache *resilience.MemoryCache
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		cache = resilience.NewMemoryCache(resilience.WithCacheClock(clock.Now))
	})

	It("returns stored values", func() {
		cache.Set(ctx, "k", []byte("v"), time.Minute)
		v, ok := cache.Get(ctx, "k")
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("v"))
	})

	It("treats an expired entry as absent and evicts it", func() {
		cache.Set(ctx, "k", []byte("v"), time.Second)
		clock.Advance(1100 * time.Millisecond)

		_, ok := cache.Get(ctx, "k")
		Expect(ok).To(BeFalse())
		Expect(cache.Len()).To(Equal(0))
	})

	It("keeps entries without a ttl", func() {
		cache.Set(ctx, "k", []byte("v"), 0)
		clock.Advance(24 * 365 * time.Hour)
		_, ok := cache.Get(ctx, "k")
		Expect(ok).To(BeTrue())
	})

	It("expires with the real clock too", func() {
		real := resilience.NewMemoryCache()
		real.Set(ctx, "k", []byte("v"), 20*time.Millisecond)
		Eventually(func() bool {
			_, ok := real.Get(ctx, "k")
			return ok
		}).WithTimeout(time.Second).WithPolling(5 * time.Millisecond).Should(BeFalse())
	})

	It("deletes and clears", func() {
		cache.Set(ctx, "a", []byte("1"), 0)
		cache.Set(ctx, "b", []byte("2"), 0)
		Expect(cache.Delete(ctx, "a")).To(BeTrue())
		Expect(cache.Delete(ctx, "a")).To(BeFalse())
		cache.Clear()
		Expect(cache.Len()).To(Equal(0))
	})
})

var _ = Describe("Key", func() {
	It("is stable for identical arguments", func() {
		Expect(resilience.Key("search", "coffee", 3)).To(Equal(resilience.Key("search", "coffee", 3)))
	})

	It("differs by name and by argument", func() {
		base := resilience.Key("search", "coffee")
		Expect(resilience.Key("retrieve", "coffee")).NotTo(Equal(base))
		Expect(resilience.Key("search", "tea")).NotTo(Equal(base))
	})

	It("ignores map insertion order", func() {
		a := map[string]int{"x": 1, "y": 2}
		b := map[string]int{"y": 2, "x": 1}
		Expect(resilience.Key("f", a)).To(Equal(resilience.Key("f", b)))
	})
})

var _ = Describe("WithCache", func() {
	var (
		ctx   context.Context
		clock *manualClock
		cache *resilience.MemoryCache
		calls map[string]int
		fn    resilience.Func[string, []string]
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		cache = resilience.NewMemoryCache(resilience.WithCacheClock(clock.Now))
		calls = map[string]int{}
		fn = func(_ context.Context, q string) ([]string, error) {
			calls[q]++
			if q == "boom" {
				return nil, errors.New("boom")
			}
			return []string{q, q}, nil
		}
	})

	It("invokes once for repeated identical calls within ttl", func() {
		cached := resilience.WithCache(cache, "dup", time.Minute, fn)
		for i := 0; i < 3; i++ {
			v, err := cached(ctx, "coffee")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal([]string{"coffee", "coffee"}))
		}
		Expect(calls["coffee"]).To(Equal(1))
	})

	It("recomputes for a different argument", func() {
		cached := resilience.WithCache(cache, "dup", time.Minute, fn)
		_, _ = cached(ctx, "coffee")
		_, _ = cached(ctx, "tea")
		Expect(calls).To(Equal(map[string]int{"coffee": 1, "tea": 1}))
	})

	It("recomputes after the ttl", func() {
		cached := resilience.WithCache(cache, "dup", time.Minute, fn)
		_, _ = cached(ctx, "coffee")
		clock.Advance(time.Minute)
		_, _ = cached(ctx, "coffee")
		Expect(calls["coffee"]).To(Equal(2))
	})

	It("never caches errors", func() {
		cached := resilience.WithCache(cache, "dup", time.Minute, fn)
		_, err := cached(ctx, "boom")
		Expect(err).To(HaveOccurred())
		_, err = cached(ctx, "boom")
		Expect(err).To(HaveOccurred())
		Expect(calls["boom"]).To(Equal(2))
	})

	It("is a passthrough when ttl is zero", func() {
		cached := resilience.WithCache(cache, "dup", 0, fn)
		_, _ = cached(ctx, "coffee")
		_, _ = cached(ctx, "coffee")
		Expect(calls["coffee"]).To(Equal(2))
	})

	It("skips retry entirely on a hit when wrapping WithRetry", func() {
		attempts := 0
		flaky := func(_ context.Context, q string) (string, error) {
			attempts++
			if attempts == 1 {
				return "", errors.New("flaky")
			}
			return q, nil
		}
		call := resilience.WithCache(cache, "flaky", time.Minute,
			resilience.WithRetry(resilience.Policy{MaxRetries: 3, InitialDelay: time.Millisecond}, "flaky", flaky))

		v, err := call(ctx, "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("x"))
		Expect(attempts).To(Equal(2))

		_, err = call(ctx, "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(attempts).To(Equal(2))
	})
})

var _ = Describe("RedisCache", func() {
	It("falls back to memory when redis is unreachable", func() {
		client := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 50 * time.Millisecond,
			MaxRetries:  -1,
		})
		DeferCleanup(client.Close)

		ctx := context.Background()
		cache := resilience.NewRedisCache(client, nil)

		_, ok := cache.Get(ctx, "k")
		Expect(ok).To(BeFalse())

		cache.Set(ctx, "k", []byte("v"), time.Minute)
		v, ok := cache.Get(ctx, "k")
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("v"))

		Expect(cache.Delete(ctx, "k")).To(BeTrue())
		_, ok = cache.Get(ctx, "k")
		Expect(ok).To(BeFalse())
	})
})
