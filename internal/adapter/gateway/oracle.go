package gatewayhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nurcahyapriantoro/agrilends/internal/domain/gateway"
)

const (
	priceKeyPrefix  = "price:quote:"
	priceTrackedSet = "price:tracked"
)

type cachedPrice struct {
	Value int64     `json:"value"`
	At    time.Time `json:"at"`
}

// OracleClient reads commodity quotes from the price oracle service, with a
// Redis read-through cache in front. A cached quote is served as long as it
// is younger than maxAge; anything older falls through to the oracle.
// Commodities that were ever quoted are tracked so the refresh sweep knows
// what to re-fetch.
type OracleClient struct {
	baseURL string
	hc      httpDoer
	rdb     *redis.Client
	maxAge  time.Duration
	now     func() time.Time
}

func NewOracleClient(baseURL string, rdb *redis.Client, maxAge time.Duration) *OracleClient {
	return &OracleClient{
		baseURL: baseURL,
		hc:      defaultClient(),
		rdb:     rdb,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

var _ gateway.PriceOracle = (*OracleClient)(nil)

func (o *OracleClient) LatestPrice(ctx context.Context, commodityID string) (gateway.PricePoint, error) {
	if p, ok := o.fromCache(ctx, commodityID); ok {
		return p, nil
	}
	return o.fetch(ctx, commodityID)
}

// RefreshStalePrices re-fetches every tracked commodity whose cached quote is
// older than the staleness window. Per-commodity failures are logged and
// skipped; the sweep fails only when the tracked set itself is unreadable.
func (o *OracleClient) RefreshStalePrices(ctx context.Context) error {
	ids, err := o.rdb.SMembers(ctx, priceTrackedSet).Result()
	if err != nil {
		return fmt.Errorf("%w: oracle tracked set: %v", gateway.ErrExternalCall, err)
	}
	for _, id := range ids {
		if _, ok := o.fromCache(ctx, id); ok {
			continue
		}
		if _, err := o.fetch(ctx, id); err != nil {
			log.Printf("price refresh: %s: %v", id, err)
		}
	}
	return nil
}

func (o *OracleClient) fromCache(ctx context.Context, commodityID string) (gateway.PricePoint, bool) {
	raw, err := o.rdb.Get(ctx, priceKeyPrefix+commodityID).Bytes()
	if err != nil {
		return gateway.PricePoint{}, false
	}
	var c cachedPrice
	if err := json.Unmarshal(raw, &c); err != nil {
		return gateway.PricePoint{}, false
	}
	if o.now().Sub(c.At) > o.maxAge {
		return gateway.PricePoint{}, false
	}
	return gateway.PricePoint{Value: c.Value, At: c.At}, true
}

func (o *OracleClient) fetch(ctx context.Context, commodityID string) (gateway.PricePoint, error) {
	var out struct {
		Value int64     `json:"value"`
		At    time.Time `json:"at"`
	}
	u := o.baseURL + "/prices/" + url.PathEscape(commodityID)
	if err := doJSON(ctx, o.hc, http.MethodGet, u, nil, &out); err != nil {
		return gateway.PricePoint{}, fmt.Errorf("%w: oracle price: %v", gateway.ErrExternalCall, err)
	}
	p := gateway.PricePoint{Value: out.Value, At: out.At}
	if p.At.IsZero() {
		p.At = o.now().UTC()
	}
	o.store(ctx, commodityID, p)
	return p, nil
}

func (o *OracleClient) store(ctx context.Context, commodityID string, p gateway.PricePoint) {
	payload, _ := json.Marshal(cachedPrice{Value: p.Value, At: p.At})
	// Keep cached quotes around past the staleness window so the refresh
	// sweep can still see what exists; staleness is checked on read.
	if err := o.rdb.Set(ctx, priceKeyPrefix+commodityID, payload, 24*time.Hour).Err(); err != nil {
		log.Printf("price cache store: %s: %v", commodityID, err)
	}
	if err := o.rdb.SAdd(ctx, priceTrackedSet, commodityID).Err(); err != nil {
		log.Printf("price cache track: %s: %v", commodityID, err)
	}
}
