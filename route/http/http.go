// Package http mounts the webhook endpoint on a plain net/http ServeMux.
package http

import (
	"net/http"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Mount registers the webhook endpoint on the given ServeMux at the
// processor's configured path. Method filtering happens inside the handler.
func Mount(mux *http.ServeMux, p *stripesync.Processor) {
	if mux == nil || p == nil {
		panic("stripesync/http: both mux and processor are required")
	}
	mux.Handle(p.WebhookPath(), p.WebhookHandler())
}
