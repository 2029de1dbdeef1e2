// Package feed fetches candidate opportunities from a remote JSON feed and
// serves them through the local TTL cache so repeated listings within the
// TTL do not refetch.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dfigueira/walletctl/internal/cache"
	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/httpx"
	"github.com/dfigueira/walletctl/internal/model"
)

type Client struct {
	http *httpx.Client
	url  string
}

func NewClient(http *httpx.Client, url string) *Client {
	return &Client{http: http, url: url}
}

type feedResponse struct {
	Opportunities []model.Opportunity `json:"opportunities"`
}

// Fetch retrieves the live feed. The response is sorted by APY descending so
// the most attractive opportunities come first.
func (c *Client) Fetch(ctx context.Context) ([]model.Opportunity, error) {
	if c.url == "" {
		return nil, clierr.New(clierr.CodeUsage, "no opportunity feed configured (set feed_url or WALLETCTL_FEED_URL)")
	}
	var resp feedResponse
	if err := c.http.GetJSON(ctx, c.url, &resp); err != nil {
		return nil, clierr.Wrap(clierr.CodeNetwork, "fetch opportunity feed", err)
	}
	out := resp.Opportunities
	sort.SliceStable(out, func(i, j int) bool { return out[i].APY > out[j].APY })
	return out, nil
}

// Service layers the TTL cache over the client. A nil cache degrades to
// always-live fetches.
type Service struct {
	client *Client
	cache  *cache.Store
	ttl    time.Duration
}

func NewService(client *Client, store *cache.Store, ttl time.Duration) *Service {
	return &Service{client: client, cache: store, ttl: ttl}
}

const cacheKey = "feed:opportunities"

// List returns the opportunities plus where they came from. On a cache miss
// the live result is written back; a fetch failure never poisons the cache.
func (s *Service) List(ctx context.Context, bypassCache bool) ([]model.Opportunity, model.CacheStatus, error) {
	status := model.CacheStatus{Status: "bypass"}
	if s.cache != nil && !bypassCache {
		res, err := s.cache.Get(cacheKey)
		if err == nil && res.Hit && !res.Stale {
			var opps []model.Opportunity
			if err := json.Unmarshal(res.Value, &opps); err == nil {
				return opps, model.CacheStatus{Status: "hit", AgeMS: res.Age.Milliseconds()}, nil
			}
		}
		status = model.CacheStatus{Status: "miss"}
	}

	opps, err := s.client.Fetch(ctx)
	if err != nil {
		return nil, status, err
	}
	if s.cache != nil && !bypassCache {
		if payload, err := json.Marshal(opps); err == nil {
			_ = s.cache.Set(cacheKey, payload, s.ttl)
		}
	}
	return opps, status, nil
}

// Find locates one opportunity by id, case-insensitively.
func (s *Service) Find(ctx context.Context, id string, bypassCache bool) (model.Opportunity, model.CacheStatus, error) {
	opps, status, err := s.List(ctx, bypassCache)
	if err != nil {
		return model.Opportunity{}, status, err
	}
	for _, opp := range opps {
		if strings.EqualFold(opp.ID, id) {
			return opp, status, nil
		}
	}
	return model.Opportunity{}, status, clierr.New(clierr.CodeUsage, fmt.Sprintf("opportunity %q not found in feed", id))
}
