package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// ProductCounter is the store call the loaders batch onto.
type ProductCounter interface {
	CountProducts(ctx context.Context, businessIds []string) (map[string]int64, error)
}

// Loaders wrap your data loaders to inject via middleware
type Loaders struct {
	productCountLoader *dataloader.Loader[string, int64]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(store ProductCounter) *Loaders {
	productCountReader := &productCountReader{store: store}

	return &Loaders{
		productCountLoader: dataloader.NewBatchedLoader(
			productCountReader.getProductCounts,
			dataloader.WithWait[string, int64](2*time.Millisecond),
		),
	}
}

func LoaderMiddleware(store ProductCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(store)
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}
