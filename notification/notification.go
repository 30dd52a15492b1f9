package notification

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/Alturino/storefront/notification/internal/service"
)

type Reader = service.Reader

// Run consumes order events from reader until c is cancelled. cache dedupes
// redelivered events and may be nil.
func Run(c context.Context, reader Reader, cache *redis.Client) error {
	return service.NewNotifier(reader, cache).Run(c)
}
