// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package mirror reads account and node keys from a mirror node's REST API.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

const DefaultTimeout = 15 * time.Second

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

type Options struct {
	// Networks maps each network to the base URL of its mirror.
	Networks map[ledger.Network]string

	// Timeout bounds each request. Defaults to 15s.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client fetches keys from the mirror. It does not retry.
type Client struct {
	networks map[ledger.Network]string
	http     *http.Client
	timeout  time.Duration
	logger   *slog.Logger
}

var _ keycache.Fetcher = (*Client)(nil)

func New(opts Options) *Client {
	c := new(Client)
	c.networks = map[ledger.Network]string{}
	for n, u := range opts.Networks {
		c.networks[n] = strings.TrimRight(u, "/")
	}
	c.timeout = opts.Timeout
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	c.http = opts.HTTPClient
	if c.http == nil {
		c.http = http.DefaultClient
	}
	c.logger = logging.Module(opts.Logger, "mirror")
	return c
}

// Fetch implements [keycache.Fetcher].
func (c *Client) Fetch(ctx context.Context, key keycache.EntityKey, versionTag string) (*keycache.FetchResult, error) {
	switch key.Kind {
	case keycache.EntityKindAccount:
		id, err := key.AccountID()
		if err != nil {
			return nil, err
		}
		return c.FetchAccountKey(ctx, key.Network, id, versionTag)

	case keycache.EntityKindNode:
		id, err := key.NodeID()
		if err != nil {
			return nil, err
		}
		return c.FetchNodeKey(ctx, key.Network, id, versionTag)

	default:
		return nil, errors.BadRequest.WithFormat("unknown entity kind %v", key.Kind)
	}
}

// FetchAccountKey returns the key and receiver signature flag of an
// account. An account that does not exist has no key.
func (c *Client) FetchAccountKey(ctx context.Context, network ledger.Network, id ledger.EntityID, versionTag string) (*keycache.FetchResult, error) {
	var account accountResponse
	result, found, err := c.get(ctx, network, "/api/v1/accounts/"+id.String(), versionTag, &account)
	if err != nil || result.NotModified || !found {
		return result, err
	}

	result.KeyTree, err = ledger.DecodeMirrorKey(account.Key)
	if err != nil {
		return nil, errors.LookupFailed.WithFormat("account %v: %w", id, err)
	}
	v := account.ReceiverSigRequired
	result.ReceiverSignatureRequired = &v
	return result, nil
}

// FetchNodeKey returns the admin key of a node. A node that does not exist
// has no key.
func (c *Client) FetchNodeKey(ctx context.Context, network ledger.Network, id uint64, versionTag string) (*keycache.FetchResult, error) {
	var nodes nodesResponse
	path := fmt.Sprintf("/api/v1/network/nodes?node.id=eq:%d", id)
	result, found, err := c.get(ctx, network, path, versionTag, &nodes)
	if err != nil || result.NotModified || !found {
		return result, err
	}

	for _, n := range nodes.Nodes {
		if n.NodeID != id {
			continue
		}
		result.KeyTree, err = ledger.DecodeMirrorKey(n.AdminKey)
		if err != nil {
			return nil, errors.LookupFailed.WithFormat("node %d: %w", id, err)
		}
		return result, nil
	}
	return result, nil
}

// get fetches path from the network's mirror and decodes the body into v.
// found is false if the mirror reports the entity does not exist.
func (c *Client) get(ctx context.Context, network ledger.Network, path, versionTag string, v any) (result *keycache.FetchResult, found bool, err error) {
	base, ok := c.networks[network]
	if !ok {
		return nil, false, errors.BadRequest.WithFormat("no mirror configured for network %q", network)
	}
	u, err := url.Parse(base + path)
	if err != nil {
		return nil, false, errors.BadRequest.WithFormat("mirror URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, errors.InternalError.WithFormat("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if versionTag != "" {
		req.Header.Set("If-None-Match", versionTag)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		mRequests.WithLabelValues(string(network), "error").Inc()
		return nil, false, errors.LookupFailed.WithFormat("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	mRequestDuration.WithLabelValues(string(network)).Observe(time.Since(start).Seconds())
	mRequests.WithLabelValues(string(network), fmt.Sprint(resp.StatusCode)).Inc()
	c.logger.DebugContext(ctx, "Mirror request", "url", u.String(), "status", resp.StatusCode, "duration", time.Since(start))

	result = &keycache.FetchResult{VersionTag: resp.Header.Get("ETag")}
	switch resp.StatusCode {
	case http.StatusOK:
		// Ok
	case http.StatusNotModified:
		result.NotModified = true
		if result.VersionTag == "" {
			result.VersionTag = versionTag
		}
		return result, true, nil
	case http.StatusNotFound:
		return result, false, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, errors.LookupFailed.WithFormat("GET %s: %s: %s", u, resp.Status, strings.TrimSpace(string(body)))
	}

	err = json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(v)
	if err != nil {
		return nil, false, errors.LookupFailed.WithFormat("GET %s: decode response: %v", u, err)
	}
	return result, true, nil
}

type accountResponse struct {
	Account             string            `json:"account"`
	Key                 *ledger.MirrorKey `json:"key"`
	ReceiverSigRequired bool              `json:"receiver_sig_required"`
	Deleted             bool              `json:"deleted"`
}

type nodesResponse struct {
	Nodes []struct {
		NodeID        uint64            `json:"node_id"`
		NodeAccountID string            `json:"node_account_id"`
		AdminKey      *ledger.MirrorKey `json:"admin_key"`
	} `json:"nodes"`
}
