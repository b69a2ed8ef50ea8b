// Package echo mounts the webhook endpoint on an Echo router.
package echo

import (
	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Mount registers the webhook endpoint on the given Echo instance at the
// processor's configured path.
func Mount(e *echo.Echo, p *stripesync.Processor) {
	if e == nil || p == nil {
		panic("stripesync/echo: both router and processor are required")
	}
	e.POST(p.WebhookPath(), echo.WrapHandler(p.WebhookHandler()))
}
