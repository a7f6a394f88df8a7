// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package resolver derives the keys that must sign a transaction from the
// current keys of the entities it implicates.
package resolver

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Keys looks up the key material of accounts and nodes.
	Keys keycache.Lookuper

	// SystemEntityMax is the highest system-reserved entity number.
	// Defaults to [ledger.DefaultSystemEntityMax].
	SystemEntityMax uint64

	// Force requires key material from within the fresh window.
	Force bool

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type Resolver struct {
	keys      keycache.Lookuper
	systemMax uint64
	force     bool
	logger    *slog.Logger
	now       func() time.Time
}

func New(opts Options) *Resolver {
	r := new(Resolver)
	r.keys = opts.Keys
	r.systemMax = opts.SystemEntityMax
	if r.systemMax == 0 {
		r.systemMax = ledger.DefaultSystemEntityMax
	}
	r.force = opts.Force
	r.logger = logging.Module(opts.Logger, "resolver")
	r.now = opts.Now
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// ResolveBytes decodes the transaction and resolves it.
func (r *Resolver) ResolveBytes(ctx context.Context, b []byte, network ledger.Network) (*SignatureAudit, error) {
	tx, err := ledger.UnmarshalTransaction(b)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, tx, network)
}

// Resolve returns the composed signature requirement of the transaction.
// Every implicated entity is looked up concurrently. If any lookup fails,
// the resolution fails.
func (r *Resolver) Resolve(ctx context.Context, tx *ledger.Transaction, network ledger.Network) (*SignatureAudit, error) {
	if tx.IsExpired(r.now()) {
		r.logger.DebugContext(ctx, "Transaction has expired", "id", tx.ID, "expired-at", tx.ExpiresAt())
		return &SignatureAudit{
			Root:                keytree.Union(),
			NewlyIntroducedKeys: keytree.NewSet(),
			Expired:             true,
		}, nil
	}

	e := newEntities(r.systemMax)
	err := e.classify(tx)
	if err != nil {
		return nil, err
	}
	newTrees, newLabels, err := e.newKeyTrees()
	if err != nil {
		return nil, err
	}

	audit := new(SignatureAudit)
	audit.ConsultedAccounts = sortedIDs(append(maps.Keys(e.signers), maps.Keys(e.receivers)...))
	audit.ReceiverAccounts = sortedIDs(maps.Keys(e.receivers))
	audit.ConsultedNodes = maps.Keys(e.nodes)
	slices.Sort(audit.ConsultedNodes)

	signers := sortedIDs(maps.Keys(e.signers))
	keys := make([]keycache.EntityKey, 0, len(signers)+len(audit.ConsultedNodes)+len(audit.ReceiverAccounts))
	for _, id := range signers {
		keys = append(keys, keycache.AccountKey(network, id))
	}
	for _, id := range audit.ConsultedNodes {
		keys = append(keys, keycache.NodeKey(network, id))
	}
	for _, id := range audit.ReceiverAccounts {
		keys = append(keys, keycache.AccountKey(network, id))
	}

	records, err := r.lookupAll(ctx, keys)
	if err != nil {
		return nil, err
	}

	// Signers and nodes come first, then receivers
	receiversFrom := len(signers) + len(audit.ConsultedNodes)
	var children []*keytree.KeyTree
	for i, rec := range records {
		if rec.KeyTree == nil {
			continue
		}
		if i >= receiversFrom && !rec.ReceiverRequired() {
			continue
		}
		children = append(children, r.sanitize(ctx, keys[i].String(), rec.KeyTree))
	}

	audit.NewlyIntroducedKeys = keytree.NewSet()
	for i, t := range newTrees {
		t = r.sanitize(ctx, newLabels[i], t)
		audit.NewlyIntroducedKeys = audit.NewlyIntroducedKeys.Union(keytree.Flatten(t))
		children = append(children, t)
	}

	audit.Root = keytree.Union(children...)
	r.logger.DebugContext(ctx, "Resolved signature requirement",
		"id", tx.ID,
		"type", tx.Body.Type(),
		"accounts", len(audit.ConsultedAccounts),
		"nodes", len(audit.ConsultedNodes),
		"required", len(audit.Root.Children))
	return audit, nil
}

// lookupAll looks up every key concurrently and waits for all of them.
func (r *Resolver) lookupAll(ctx context.Context, keys []keycache.EntityKey) ([]*keycache.Record, error) {
	records := make([]*keycache.Record, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			rec, err := r.keys.Lookup(gctx, key, r.force)
			switch {
			case err == nil:
				records[i] = rec
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				return errors.UnknownError.WithFormat("lookup %v: %w", key, err)
			}
		})
	}

	err := g.Wait()
	if err == nil {
		return records, nil
	}

	// If the group was canceled by a failed lookup, report that failure,
	// but if the caller gave up report that
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, err
}

// sanitize repairs a malformed key and logs what was wrong with it.
func (r *Resolver) sanitize(ctx context.Context, source string, t *keytree.KeyTree) *keytree.KeyTree {
	return keytree.Sanitize(t, func(a keytree.Anomaly) {
		mAnomalies.Inc()
		r.logger.WarnContext(ctx, "Malformed key", "source", source, "anomaly", a.String())
	})
}

func sortedIDs(ids []ledger.EntityID) []ledger.EntityID {
	slices.SortFunc(ids, func(a, b ledger.EntityID) int { return a.Compare(b) })
	return ids
}

func nodeLabel(id uint64) string {
	return strconv.FormatUint(id, 10)
}
