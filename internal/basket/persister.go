package basket

import (
	"context"

	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/metrics"
)

// Persister writes the full line collection to storage after each mutation. Write failures
// are logged and counted; the in-memory basket is never rolled back.
type Persister struct {
	storage Storage
	scope   string
	key     string
	logg    *logger.Logger
	metrics *metrics.BasketMetrics
}

func NewPersister(storage Storage, scope, key string, logg *logger.Logger, m *metrics.BasketMetrics) *Persister {
	return &Persister{storage: storage, scope: scope, key: key, logg: logg, metrics: m}
}

func (p *Persister) BasketChanged(ctx context.Context, op string, lines []Line) {
	data, err := encodeSnapshot(lines)
	if err == nil {
		err = p.storage.Save(ctx, p.scope, p.key, data)
	}
	if err != nil {
		p.metrics.IncPersist(metrics.ResultError)
		if p.logg != nil {
			p.logg.Error(p.logg.WithField(ctx, "basket_op", op), "basket snapshot write failed", err)
		}
		return
	}
	p.metrics.IncPersist(metrics.ResultOK)
}
