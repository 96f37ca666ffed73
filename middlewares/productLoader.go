package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
)

type productCountReader struct {
	store ProductCounter
}

func (r *productCountReader) getProductCounts(ctx context.Context, businessIds []string) []*dataloader.Result[int64] {
	counts, err := r.store.CountProducts(ctx, businessIds)
	if err != nil {
		return handleError[int64](len(businessIds), err)
	}

	loaderResults := make([]*dataloader.Result[int64], 0, len(businessIds))
	for _, id := range businessIds {
		loaderResults = append(loaderResults, &dataloader.Result[int64]{Data: counts[id]})
	}
	return loaderResults
}

func GetProductCount(ctx context.Context, businessId string) (int64, error) {
	loaders := For(ctx)
	return loaders.productCountLoader.Load(ctx, businessId)()
}

func GetProductCounts(ctx context.Context, businessIds []string) ([]int64, []error) {
	loaders := For(ctx)
	return loaders.productCountLoader.LoadMany(ctx, businessIds)()
}
