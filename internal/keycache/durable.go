// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keycache

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// DurableOptions configures a Durable cache.
type DurableOptions struct {
	Store     Store
	Fetcher   Fetcher
	Freshness Freshness

	// ReclaimAfter is how long a lease is honored before another process
	// may take it over.
	ReclaimAfter time.Duration

	// LeaseWait bounds how long a lookup waits for another process to
	// populate a record that has never been populated.
	LeaseWait time.Duration

	// PollInterval is the delay between reads while waiting. Defaults to
	// 50ms.
	PollInterval time.Duration

	Logger *slog.Logger

	// Now defaults to time.Now and NewLease to a random UUID.
	Now      func() time.Time
	NewLease func() string
}

// Durable is a cache shared between processes through a Store. A stale
// record is refreshed by the one process that claims its lease. Every other
// process uses the record as it stands.
type Durable struct {
	opts   DurableOptions
	logger *slog.Logger
}

var _ Lookuper = (*Durable)(nil)

func NewDurable(opts DurableOptions) *Durable {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewLease == nil {
		opts.NewLease = uuid.NewString
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	return &Durable{
		opts:   opts,
		logger: logging.Module(opts.Logger, "keycache"),
	}
}

// Lookup returns the stored record if it is fresh. Otherwise it tries to
// claim the record's lease and refresh it from the mirror. If another
// process holds the lease the stored record is returned as is, unless it
// has never been populated.
func (d *Durable) Lookup(ctx context.Context, key EntityKey, force bool) (*Record, error) {
	current, err := d.opts.Store.Get(ctx, key)
	switch {
	case err == nil:
		if d.opts.Freshness.IsFresh(key.Kind, current.LastCheckedAt, d.opts.Now(), force) {
			mLookups.WithLabelValues("durable", resultHit).Inc()
			return current, nil
		}
	case errors.Is(err, errors.NotFound):
		current = nil
	default:
		return nil, errors.UnknownError.WithFormat("load %v: %w", key, err)
	}
	mLookups.WithLabelValues("durable", resultMiss).Inc()

	// Once the lease is claimed it must be completed or released, so the
	// rest of the refresh ignores cancellation
	ctx = logging.With(context.WithoutCancel(ctx), "entity", key)
	return d.refresh(ctx, key, current, force)
}

func (d *Durable) refresh(ctx context.Context, key EntityKey, previous *Record, force bool) (*Record, error) {
	lease := d.opts.NewLease()
	now := d.opts.Now()
	claimed, acquired, err := d.opts.Store.Claim(ctx, key, lease, now, now.Add(-d.opts.ReclaimAfter))
	if err != nil {
		return nil, errors.UnknownError.WithFormat("claim %v: %w", key, err)
	}

	if !acquired {
		mLeases.WithLabelValues(leaseBusy).Inc()
		d.logger.DebugContext(ctx, "Refresh in progress elsewhere", "lease", claimed.RefreshLease)
		if claimed.Populated() {
			return claimed, nil
		}
		return d.waitForPopulate(ctx, key)
	}

	if previous != nil && previous.RefreshLease != "" {
		mLeases.WithLabelValues(leaseReclaimed).Inc()
		d.logger.InfoContext(ctx, "Reclaimed expired lease", "lease", previous.RefreshLease, "since", previous.UpdatedAt)
	} else {
		mLeases.WithLabelValues(leaseAcquired).Inc()
	}

	// Another process may have finished a refresh between the read and the
	// claim
	if d.opts.Freshness.IsFresh(key.Kind, claimed.LastCheckedAt, d.opts.Now(), force) {
		d.release(ctx, key, lease)
		claimed.RefreshLease = ""
		return claimed, nil
	}

	start := time.Now()
	result, err := d.opts.Fetcher.Fetch(ctx, key, claimed.SourceVersionTag)
	mFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		mFetches.WithLabelValues("error").Inc()
		d.release(ctx, key, lease)
		return nil, errors.LookupFailed.WithFormat("fetch %v: %w", key, err)
	}
	switch {
	case result.NotModified:
		mFetches.WithLabelValues("not_modified").Inc()
	case result.KeyTree == nil:
		mFetches.WithLabelValues("no_key").Inc()
	default:
		mFetches.WithLabelValues("ok").Inc()
	}

	update := NewUpdate(result, d.opts.Now())
	if update.NotModified && !claimed.Populated() {
		d.release(ctx, key, lease)
		return nil, errors.LookupFailed.WithFormat("fetch %v: mirror reported not modified for a record that was never populated", key)
	}

	completed, ok, err := d.opts.Store.Complete(ctx, key, lease, update)
	switch {
	case err != nil:
		// The lease will expire. The fetched material is still good.
		d.logger.WarnContext(ctx, "Failed to store refreshed key material", "error", err, "code", errors.Code(err))
	case ok:
		return completed, nil
	default:
		mLeases.WithLabelValues(leaseLost).Inc()
		d.logger.InfoContext(ctx, "Lost refresh lease", "lease", lease, "holder", completed.RefreshLease)
	}

	r := claimed.Copy()
	update.Apply(r)
	return r, nil
}

func (d *Durable) release(ctx context.Context, key EntityKey, lease string) {
	err := d.opts.Store.Release(ctx, key, lease)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to release refresh lease", "lease", lease, "error", err)
		return
	}
	mLeases.WithLabelValues(leaseReleased).Inc()
}

// waitForPopulate polls the store until another process populates the
// record. Reporting that the entity has no key would be wrong, so if the
// wait runs out the lookup fails.
func (d *Durable) waitForPopulate(ctx context.Context, key EntityKey) (*Record, error) {
	deadline := time.NewTimer(d.opts.LeaseWait)
	defer deadline.Stop()
	tick := time.NewTicker(d.opts.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-deadline.C:
			return nil, errors.NotReady.WithFormat("%v is being populated by another process", key)
		case <-tick.C:
		}

		r, err := d.opts.Store.Get(ctx, key)
		switch {
		case err == nil:
			if r.Populated() {
				return r, nil
			}
		case errors.Is(err, errors.NotFound):
		default:
			return nil, errors.UnknownError.WithFormat("load %v: %w", key, err)
		}
	}
}

// Peek returns the stored record without refreshing it.
func (d *Durable) Peek(ctx context.Context, key EntityKey) (*Record, error) {
	return d.opts.Store.Get(ctx, key)
}
