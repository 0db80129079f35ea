package guard_test

import (
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"verdict.app/engine/internal/guard"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ = Describe("RateLimiter", func() {
	var (
		clock   *fakeClock
		limiter *guard.RateLimiter
	)

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
		limiter = guard.NewRateLimiter(10, 60*time.Second, guard.WithClock(clock.Now))
	})

	It("admits exactly max requests per window, then rejects", func() {
		for i := 0; i < 10; i++ {
			ok, msg := limiter.Admit("alice")
			Expect(ok).To(BeTrue(), "request %d", i+1)
			Expect(msg).To(BeEmpty())
		}

		ok, msg := limiter.Admit("alice")
		Expect(ok).To(BeFalse())
		Expect(msg).To(Equal("Rate limit exceeded (10 requests per 60s)"))
		Expect(limiter.Remaining("alice")).To(Equal(0))
	})

	It("forgets identifiers whose window has emptied", func() {
		for i := 0; i < 100; i++ {
			limiter.Admit(fmt.Sprintf("caller-%d", i))
		}
		Expect(limiter.Tracked()).To(Equal(100))

		clock.Advance(61 * time.Second)
		ok, _ := limiter.Admit("late")
		Expect(ok).To(BeTrue())
		Expect(limiter.Tracked()).To(Equal(1))
	})

	It("keeps identifiers that still have live requests through a sweep", func() {
		for i := 0; i < 10; i++ {
			limiter.Admit("alice")
		}
		clock.Advance(30 * time.Second)
		limiter.Admit("bob")
		clock.Advance(31 * time.Second)

		limiter.Admit("carol")
		Expect(limiter.Tracked()).To(Equal(2))
		Expect(limiter.Remaining("alice")).To(Equal(10))
		Expect(limiter.Remaining("bob")).To(Equal(9))
	})

	It("tracks identifiers independently", func() {
		for i := 0; i < 10; i++ {
			limiter.Admit("alice")
		}
		ok, _ := limiter.Admit("bob")
		Expect(ok).To(BeTrue())
		Expect(limiter.Remaining("bob")).To(Equal(9))
	})

	It("resumes admission once the window has elapsed", func() {
		for i := 0; i < 10; i++ {
			limiter.Admit("alice")
		}
		clock.Advance(59 * time.Second)
		ok, _ := limiter.Admit("alice")
		Expect(ok).To(BeFalse())

		clock.Advance(time.Second)
		ok, _ = limiter.Admit("alice")
		Expect(ok).To(BeTrue())
	})

	It("slides rather than resetting in fixed buckets", func() {
		for i := 0; i < 5; i++ {
			limiter.Admit("alice")
		}
		clock.Advance(30 * time.Second)
		for i := 0; i < 5; i++ {
			limiter.Admit("alice")
		}
		clock.Advance(31 * time.Second)

		Expect(limiter.Remaining("alice")).To(Equal(5))
		for i := 0; i < 5; i++ {
			ok, _ := limiter.Admit("alice")
			Expect(ok).To(BeTrue())
		}
		ok, _ := limiter.Admit("alice")
		Expect(ok).To(BeFalse())
	})

	It("does not record rejected requests", func() {
		for i := 0; i < 15; i++ {
			limiter.Admit("alice")
		}
		clock.Advance(60 * time.Second)
		Expect(limiter.Remaining("alice")).To(Equal(10))
	})

	It("returns a RateLimitError from Allow", func() {
		for i := 0; i < 10; i++ {
			Expect(limiter.Allow("alice")).To(Succeed())
		}
		err := limiter.Allow("alice")

		var rle *guard.RateLimitError
		Expect(errors.As(err, &rle)).To(BeTrue())
		Expect(rle.Identifier).To(Equal("alice"))
	})

	It("is safe under concurrent use", func() {
		var wg sync.WaitGroup
		var mu sync.Mutex
		admitted := 0

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := limiter.Admit("shared"); ok {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Expect(admitted).To(Equal(10))
	})

	It("falls back to defaults for non-positive settings", func() {
		l := guard.NewRateLimiter(0, 0, guard.WithClock(clock.Now))
		for i := 0; i < guard.DefaultMaxRequests; i++ {
			ok, _ := l.Admit("id")
			Expect(ok).To(BeTrue())
		}
		ok, msg := l.Admit("id")
		Expect(ok).To(BeFalse())
		Expect(msg).To(ContainSubstring("per 60s"))
	})
})
