package resilience_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"verdict.app/engine/internal/resilience"
)

type timeoutError struct{ op string }

func (e *timeoutError) Error() string { return e.op + ": timeout" }

var _ = Describe("Retry", func() {
	var (
		ctx    context.Context
		policy resilience.Policy
	)

	BeforeEach(func() {
		ctx = context.Background()
		policy = resilience.Policy{
			MaxRetries:    3,
			InitialDelay:  time.Millisecond,
			BackoffFactor: 2.0,
		}
	})

	failTimes := func(n int, calls *int32) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			c := atomic.AddInt32(calls, 1)
			if int(c) <= n {
				return "", &timeoutError{op: "search"}
			}
			return "ok", nil
		}
	}

	It("returns immediately on success", func() {
		var calls int32
		v, err := resilience.Retry(ctx, policy, "search", failTimes(0, &calls))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("ok"))
		Expect(calls).To(Equal(int32(1)))
	})

	DescribeTable("succeeds after N < max failures with N+1 calls",
		func(n int) {
			var calls int32
			v, err := resilience.Retry(ctx, policy, "search", failTimes(n, &calls))
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("ok"))
			Expect(calls).To(Equal(int32(n + 1)))
		},
		Entry("one failure", 1),
		Entry("two failures", 2),
		Entry("three failures", 3),
	)

	It("surfaces the original error type after max+1 failures", func() {
		var calls int32
		_, err := resilience.Retry(ctx, policy, "search", failTimes(4, &calls))
		Expect(calls).To(Equal(int32(4)))

		var te *timeoutError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.op).To(Equal("search"))

		var ese *resilience.ExternalServiceError
		Expect(errors.As(err, &ese)).To(BeTrue())
		Expect(ese.Service).To(Equal("search"))
		Expect(ese.Attempts).To(Equal(4))
	})

	It("does not retry errors the policy rejects", func() {
		policy.Retryable = func(_ context.Context, err error) bool {
			var te *timeoutError
			return errors.As(err, &te)
		}
		var calls int32
		permanent := errors.New("bad request")
		_, err := resilience.Retry(ctx, policy, "llm", func(context.Context) (int, error) {
			atomic.AddInt32(&calls, 1)
			return 0, permanent
		})
		Expect(err).To(MatchError(permanent))
		Expect(calls).To(Equal(int32(1)))
	})

	It("waits with exponential backoff", func() {
		policy.InitialDelay = 10 * time.Millisecond
		policy.MaxRetries = 2
		var calls int32
		start := time.Now()
		_, err := resilience.Retry(ctx, policy, "search", failTimes(2, &calls))
		Expect(err).NotTo(HaveOccurred())
		// 10ms + 20ms
		Expect(time.Since(start)).To(BeNumerically(">=", 30*time.Millisecond))
	})

	It("stops waiting when the context is cancelled", func() {
		policy.InitialDelay = time.Hour
		cctx, cancel := context.WithCancel(ctx)
		var calls int32
		go func() {
			defer GinkgoRecover()
			Eventually(func() int32 { return atomic.LoadInt32(&calls) }).Should(Equal(int32(1)))
			cancel()
		}()

		_, err := resilience.Retry(cctx, policy, "search", failTimes(10, &calls))
		Expect(err).To(MatchError(context.Canceled))
	})

	It("DefaultPolicy is three retries from one second doubling", func() {
		p := resilience.DefaultPolicy()
		Expect(p.MaxRetries).To(Equal(3))
		Expect(p.InitialDelay).To(Equal(time.Second))
		Expect(p.BackoffFactor).To(Equal(2.0))
	})
})

var _ = Describe("WithRetry", func() {
	It("passes the argument through on every attempt", func() {
		var seen []string
		fn := resilience.WithRetry(resilience.Policy{MaxRetries: 2, InitialDelay: time.Millisecond},
			"echo",
			func(_ context.Context, q string) (string, error) {
				seen = append(seen, q)
				if len(seen) < 2 {
					return "", errors.New("flaky")
				}
				return q + "!", nil
			})

		v, err := fn(context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("hi!"))
		Expect(seen).To(Equal([]string{"hi", "hi"}))
	})
})
