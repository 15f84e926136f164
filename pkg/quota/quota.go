// Package quota implements admission control for workflow runs: an atomic
// check-and-consume of a tenant's remaining node-execution balance, backed
// by either in-process state or a NATS JetStream KeyValue bucket.
package quota

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// DefaultAllowance is the balance granted to tenants with no configured
// quota. Unconfigured tenants are admitted (fail-open); exhausted tenants
// are denied (fail-closed).
const DefaultAllowance int64 = 10000

// Store is the shared quota state consulted by the Gate. Implementations
// must make CheckAndConsume atomic with respect to concurrent calls for the
// same tenant: two simultaneous requests must never both succeed when their
// combined units exceed the remaining balance.
type Store interface {
	// CheckAndConsume decrements the tenant's balance by units if the
	// balance is sufficient. It returns whether the request was approved
	// and the balance after the call (unchanged on denial). Tenants never
	// seen before are seeded with the store's default allowance first.
	CheckAndConsume(ctx context.Context, tenantID string, units int64) (approved bool, remaining int64, err error)

	// SetBalance provisions a tenant's balance, overwriting any prior value.
	SetBalance(ctx context.Context, tenantID string, balance int64) error

	// Balance returns the tenant's current balance without consuming.
	// Unknown tenants report the default allowance.
	Balance(ctx context.Context, tenantID string) (int64, error)
}

// Gate performs the pre-run admission check. It charges the workflow's
// total node count in one all-or-nothing operation, so a denied run
// consumes nothing.
type Gate struct {
	store  Store
	logger *zap.Logger
}

// NewGate creates an admission gate over the given store.
func NewGate(store Store, logger *zap.Logger) (*Gate, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Gate{store: store, logger: logger}, nil
}

// CheckAndConsume atomically charges units against the tenant's balance.
func (g *Gate) CheckAndConsume(ctx context.Context, tenantID string, units int64) (bool, int64, error) {
	if units <= 0 {
		return false, 0, errors.New("units must be greater than 0")
	}
	if tenantID == "" {
		return false, 0, errors.New("tenantID cannot be empty")
	}

	approved, remaining, err := g.store.CheckAndConsume(ctx, tenantID, units)
	if err != nil {
		g.logger.Error("Quota check failed",
			zap.String("tenantID", tenantID),
			zap.Int64("units", units),
			zap.Error(err))
		return false, 0, err
	}

	if !approved {
		g.logger.Warn("Run denied by admission gate",
			zap.String("tenantID", tenantID),
			zap.Int64("units", units),
			zap.Int64("remaining", remaining))
		return false, remaining, nil
	}

	g.logger.Debug("Run admitted",
		zap.String("tenantID", tenantID),
		zap.Int64("units", units),
		zap.Int64("remaining", remaining))
	return true, remaining, nil
}
