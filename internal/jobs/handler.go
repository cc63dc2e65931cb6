package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/mikud/israelpost"
)

// Lookuper resolves a zipcode for an address
type Lookuper interface {
	Lookup(ctx context.Context, addr *israelpost.Address) (string, error)
}

// NewPrefetchHandler resolves the task's address so the result lands in
// the shared cache. Permanent failures are dropped, not retried.
func NewPrefetchHandler(l Lookuper, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p PrefetchPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad prefetch payload")
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}

		taskID, _ := asynq.GetTaskID(ctx)
		start := time.Now()
		zip, err := l.Lookup(ctx, &p.Address)
		ev := logger.Info().
			Str("task_id", taskID).
			Str("city", p.Address.City).
			Str("street", p.Address.Street).
			Dur("duration", time.Since(start))
		if err != nil {
			kind := israelpost.KindOf(err).String()
			if IsRetryable(err) {
				ev.Str("kind", kind).Err(err).Msg("prefetch failed, will retry")
				return err
			}
			ev.Str("kind", kind).Err(err).Msg("prefetch failed permanently, dropping job")
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		ev.Str("zipcode", zip).Msg("prefetch done")
		return nil
	}
}

// IsRetryable determines if a lookup failure is worth another attempt
func IsRetryable(err error) bool {
	var e *israelpost.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case israelpost.KindTimeout,
		israelpost.KindNetworkUnavailable,
		israelpost.KindServiceUnavailable,
		israelpost.KindBotProtection:
		return true
	case israelpost.KindHTTPError:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}
