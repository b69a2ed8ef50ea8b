// Package chi mounts the webhook endpoint on a chi router.
package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Mount registers the webhook endpoint on the given chi router at the
// processor's configured path.
func Mount(r chi.Router, p *stripesync.Processor) {
	if r == nil || p == nil {
		panic("stripesync/chi: both router and processor are required")
	}
	r.Method(http.MethodPost, p.WebhookPath(), p.WebhookHandler())
}
