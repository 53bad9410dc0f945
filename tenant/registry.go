package tenant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/grafana/dskit/tenant"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/gigapi/gigapi-chat/core"
	"github.com/gigapi/gigapi-chat/metrics"
)

var (
	errRegistryClosed = errors.New("tenant registry is closed")
	errEmptyTenantID  = errors.New("empty tenant id")
)

type openFn func(ctx context.Context, id, dsn string) (*Store, error)

// Registry maps tenant ids to their stores. Stores are created lazily on first
// access and live until Close/CloseAll.
type Registry struct {
	sync.RWMutex
	stores map[string]*Store
	closed bool

	sflight     singleflight.Group // one construction per tenant id
	provisioner *Provisioner
	open        openFn
	metrics     *metrics.Metrics
}

// NewRegistry creates a registry provisioning stores through p
func NewRegistry(p *Provisioner, m *metrics.Metrics) *Registry {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Registry{
		stores:      make(map[string]*Store),
		provisioner: p,
		open:        Open,
		metrics:     m,
	}
}

// GetOrCreate returns the store of tenantID, creating it on first access.
// Concurrent first accesses for the same id share a single construction.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID string) (*Store, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: %w: %v", core.ErrProvision, core.ErrInvalidTenantID, errEmptyTenantID)
	}
	if err := tenant.ValidTenantID(tenantID); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", core.ErrProvision, core.ErrInvalidTenantID, err)
	}

	r.RLock()
	s, ok := r.stores[tenantID]
	closed := r.closed
	r.RUnlock()
	if ok {
		return s, nil
	}
	if closed {
		return nil, errRegistryClosed
	}

	v, err, _ := r.sflight.Do(tenantID, func() (interface{}, error) {
		r.RLock()
		s, ok := r.stores[tenantID]
		r.RUnlock()
		if ok {
			return s, nil
		}

		dsn, err := r.provisioner.Provision(tenantID)
		if err != nil {
			return nil, err
		}
		s, err = r.open(context.WithoutCancel(ctx), tenantID, dsn)
		if err != nil {
			return nil, err
		}

		r.Lock()
		defer r.Unlock()
		if r.closed {
			s.Close()
			return nil, errRegistryClosed
		}
		r.stores[tenantID] = s
		r.metrics.Tenants.Set(float64(len(r.stores)))
		core.Infof(ctx, "opened store for tenant %s at %q", tenantID, dsn)
		return s, nil
	})
	if err != nil {
		if errors.Is(err, errRegistryClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w for tenant %s: %v", core.ErrProvision, tenantID, err)
	}
	return v.(*Store), nil
}

// Get returns the store of tenantID without creating it
func (r *Registry) Get(tenantID string) (*Store, bool) {
	r.RLock()
	defer r.RUnlock()
	s, ok := r.stores[tenantID]
	return s, ok
}

// Close closes and evicts the store of tenantID. Unknown ids are ignored.
func (r *Registry) Close(tenantID string) error {
	r.Lock()
	s, ok := r.stores[tenantID]
	delete(r.stores, tenantID)
	r.metrics.Tenants.Set(float64(len(r.stores)))
	r.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// CloseAll closes every live store once. Failures are logged and do not stop
// the sweep; they are returned combined.
func (r *Registry) CloseAll() error {
	r.Lock()
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.closed = true
	r.metrics.Tenants.Set(0)
	r.Unlock()

	ctx := core.WithDefaultLogger(context.Background(), "shutdown")
	var errs error
	for id, s := range stores {
		if err := s.Close(); err != nil {
			core.Errorf(ctx, "failed to close store for tenant %s: %v", id, err)
			errs = multierr.Append(errs, fmt.Errorf("tenant %s: %w", id, err))
		}
	}
	return errs
}

// Tenants returns the ids of the live stores, sorted
func (r *Registry) Tenants() []string {
	r.RLock()
	defer r.RUnlock()
	res := make([]string, 0, len(r.stores))
	for id := range r.stores {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

// Len returns the number of live stores
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.stores)
}
