package callbacks

import (
	"context"
	"net/url"

	"github.com/CedrosPay/paysim/internal/circuitbreaker"
	"github.com/CedrosPay/paysim/internal/storage"
)

// GuardedDeliverer runs next behind the breaker for each webhook's destination host.
// A nil manager returns next unchanged.
func GuardedDeliverer(next Deliverer, breakers *circuitbreaker.Manager) Deliverer {
	if breakers == nil {
		return next
	}
	return DelivererFunc(func(ctx context.Context, webhook storage.PendingWebhook) error {
		return breakers.Execute(destination(webhook.URL), func() error {
			return next.Deliver(ctx, webhook)
		})
	})
}

// destination groups webhooks by host so one endpoint's failures stay isolated.
func destination(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
