package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Key derives a stable cache key from a function name and its arguments.
// Arguments are JSON-encoded, so map arguments hash the same regardless of
// insertion order.
func Key(name string, args ...any) string {
	h := sha256.New()
	h.Write([]byte(name))
	for _, arg := range args {
		h.Write([]byte{':'})
		raw, err := json.Marshal(arg)
		if err != nil {
			raw = []byte(fmt.Sprintf("%#v", arg))
		}
		h.Write(raw)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WithCache memoises fn for ttl. A live entry is returned without calling fn,
// so when fn is itself wrapped with WithRetry a hit skips retry entirely.
// Errors are never cached. A nil cache or ttl <= 0 returns fn unchanged.
func WithCache[A, T any](cache Cache, name string, ttl time.Duration, fn Func[A, T]) Func[A, T] {
	if cache == nil || ttl <= 0 {
		return fn
	}

	return func(ctx context.Context, arg A) (T, error) {
		key := Key(name, arg)

		if raw, ok := cache.Get(ctx, key); ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				slog.DebugContext(ctx, "cache hit", "service", name)
				return v, nil
			}
			cache.Delete(ctx, key)
		}

		v, err := fn(ctx, arg)
		if err != nil {
			return v, err
		}

		raw, err := json.Marshal(v)
		if err != nil {
			slog.WarnContext(ctx, "cache encode failed, result not cached", "service", name, "error", err)
			return v, nil
		}
		cache.Set(ctx, key, raw, ttl)
		return v, nil
	}
}
