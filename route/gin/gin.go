// Package gin mounts the webhook endpoint on a Gin engine.
package gin

import (
	"github.com/gin-gonic/gin"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Mount registers the webhook endpoint on the given Gin engine at the
// processor's configured path.
func Mount(r *gin.Engine, p *stripesync.Processor) {
	if r == nil || p == nil {
		panic("stripesync/gin: both engine and processor are required")
	}
	r.POST(p.WebhookPath(), gin.WrapH(p.WebhookHandler()))
}
