// Package api talks to the external profile service (DATA_API_BASE): it
// resolves connection tokens to players and receives finished matches.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pefman/seabattle/internal/match"
)

var (
	ErrUnauthorized = errors.New("token rejected by profile service")
	ErrStatus       = errors.New("unexpected profile service status")
)

const defaultCacheTTL = 5 * time.Minute

// Identity is the player a token belongs to.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

type cached struct {
	id Identity
	at time.Time
}

type Client struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration

	// identities per token, to avoid a round trip on every reconnect
	mu    sync.RWMutex
	cache map[string]cached
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 8 * time.Second},
		ttl:     defaultCacheTTL,
		cache:   map[string]cached{},
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Wrapf(ErrStatus, "%s %s: %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s", path)
}

// ResolveIdentity maps a client token to a player via GET /api/me.
func (c *Client) ResolveIdentity(ctx context.Context, token string) (Identity, error) {
	c.mu.RLock()
	hit, ok := c.cache[token]
	c.mu.RUnlock()
	if ok && time.Since(hit.at) < c.ttl {
		return hit.id, nil
	}

	var id Identity
	if err := c.do(ctx, http.MethodGet, "/api/me", token, nil, &id); err != nil {
		return Identity{}, err
	}
	if id.ID == "" {
		return Identity{}, errors.Wrap(ErrUnauthorized, "empty identity")
	}
	c.mu.Lock()
	c.cache[token] = cached{id: id, at: time.Now()}
	c.mu.Unlock()
	return id, nil
}

// Record implements match.Recorder by posting the outcome to /api/matches.
func (c *Client) Record(ctx context.Context, o match.Outcome) error {
	return c.do(ctx, http.MethodPost, "/api/matches", "", o, nil)
}
