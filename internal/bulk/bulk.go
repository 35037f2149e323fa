// Package bulk implements the bulk query engine (C4): it drives the
// correlator over a large address list with pacing, bounded concurrency,
// retries, and progress callbacks.
package bulk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gravwell/x32mgr/internal/errs"
	"github.com/gravwell/x32mgr/internal/osc"
)

// Requester is the subset of the correlator's surface the engine needs.
type Requester interface {
	Request(ctx context.Context, address string, args []osc.Arg, timeout time.Duration) ([]osc.Arg, error)
}

// Query is one address to sweep, with an optional section label surfaced
// through the progress callback and optional request args (most queries
// send none).
type Query struct {
	Address string
	Args    []osc.Arg
	Label   string
}

// Policy carries the pacing/retry knobs.
type Policy struct {
	PerRequestTimeout time.Duration
	MaxAttempts       int
	InflightWindow    int
	InterSendGap      time.Duration
	ProgressCadence   int
}

// DefaultPolicy returns the engine's default pacing/retry knobs.
func DefaultPolicy() Policy {
	return Policy{
		PerRequestTimeout: 500 * time.Millisecond,
		MaxAttempts:       3,
		InflightWindow:    1,
		InterSendGap:      3 * time.Millisecond,
		ProgressCadence:   1,
	}
}

// Result is one address's outcome, in input order. Err is set when every
// attempt timed out (Args is the sentinel nil/empty "no-value"), when the
// sweep as a whole aborted after this address had already been issued, or
// (as errs.Canceled) when the sweep aborted before this address was issued.
type Result struct {
	Address string
	Args    []osc.Arg
	Err     error
}

// ProgressFunc is invoked at the configured cadence with the running
// completion count, the sweep total, and the section label of whichever
// address most recently completed.
type ProgressFunc func(completed, total int, label string)

// Sweep drives addresses through req, respecting policy, and returns
// results pairwise-aligned with addresses regardless of the inflight
// window or completion order. On cancellation it stops issuing new
// requests, waits for outstanding ones to settle, and returns the partial
// result alongside an errs.Canceled error. A TRANSPORT_ERROR on any
// address aborts the remainder of the sweep the same way.
func Sweep(ctx context.Context, req Requester, addresses []Query, policy Policy, progress ProgressFunc) ([]Result, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.InflightWindow <= 0 {
		policy.InflightWindow = 1
	}
	if policy.ProgressCadence <= 0 {
		policy.ProgressCadence = 1
	}

	results := make([]Result, len(addresses))
	var limiter *rate.Limiter
	if policy.InterSendGap > 0 {
		limiter = rate.NewLimiter(rate.Every(policy.InterSendGap), 1)
	}

	var completed int32
	var progMtx sync.Mutex
	total := len(addresses)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(policy.InflightWindow)

	var abortErr atomic.Value // holds error

	for i := range addresses {
		i := i
		q := addresses[i]
		if gctx.Err() != nil {
			for j := i; j < len(addresses); j++ {
				results[j] = Result{Address: addresses[j].Address, Err: errs.New("bulk.Sweep", errs.Canceled, gctx.Err())}
			}
			break
		}
		g.Go(func() error {
			r, err := sweepOne(gctx, req, q, policy, limiter)
			results[i] = r

			if err != nil {
				abortErr.Store(err)
				return err
			}

			n := atomic.AddInt32(&completed, 1)
			if progress != nil && (int(n)%policy.ProgressCadence == 0 || int(n) == total) {
				progMtx.Lock()
				progress(int(n), total, q.Label)
				progMtx.Unlock()
			}
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr != nil {
		if v := abortErr.Load(); v != nil {
			return results, v.(error)
		}
		return results, waitErr
	}
	if ctx.Err() != nil {
		return results, errs.New("bulk.Sweep", errs.Canceled, ctx.Err())
	}
	return results, nil
}

// sweepOne issues up to policy.MaxAttempts requests for one query,
// recording a sentinel no-value result if every attempt times out, and
// propagating TRANSPORT_ERROR/CANCELED immediately so the caller can
// abort the sweep.
func sweepOne(ctx context.Context, req Requester, q Query, policy Policy, limiter *rate.Limiter) (Result, error) {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return Result{Address: q.Address, Err: errs.New("bulk.sweepOne", errs.Canceled, err)}, errs.New("bulk.sweepOne", errs.Canceled, err)
			}
		}
		args, err := req.Request(ctx, q.Address, q.Args, policy.PerRequestTimeout)
		if err == nil {
			return Result{Address: q.Address, Args: args}, nil
		}
		lastErr = err
		switch errs.KindOf(err) {
		case errs.Timeout:
			continue // retry
		case errs.Canceled:
			return Result{Address: q.Address, Err: err}, err
		case errs.TransportError:
			return Result{Address: q.Address, Err: err}, err
		default:
			continue
		}
	}
	// exhausted retries on TIMEOUT: record the sentinel no-value and
	// let the sweep continue.
	return Result{Address: q.Address, Err: lastErr}, nil
}
