// Package mux mounts the webhook endpoint on a gorilla/mux router.
package mux

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Mount registers the webhook endpoint on the given gorilla/mux router at
// the processor's configured path.
func Mount(r *mux.Router, p *stripesync.Processor) {
	if r == nil || p == nil {
		panic("stripesync/mux: both router and processor are required")
	}
	r.Handle(p.WebhookPath(), p.WebhookHandler()).Methods(http.MethodPost)
}
