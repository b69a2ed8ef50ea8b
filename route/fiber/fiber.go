// Package fiber mounts the webhook endpoint on a Fiber app.
package fiber

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Mount registers the webhook endpoint on the given Fiber app at the
// processor's configured path. Fiber runs on fasthttp, so the handler goes
// through the net/http adaptor.
func Mount(app *fiber.App, p *stripesync.Processor) {
	if app == nil || p == nil {
		panic("stripesync/fiber: both app and processor are required")
	}
	app.Post(p.WebhookPath(), adaptor.HTTPHandler(p.WebhookHandler()))
}
