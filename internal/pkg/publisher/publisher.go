package publisher

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var ErrAlreadyRegistered = errors.New("publisher already registered")

type publisher interface {
	// Write pushes one accepted row to the downstream sink.
	Write(ctx context.Context, row model.Row) error
}

// Registry fans every accepted row out to the registered sinks. A failing sink is
// logged and skipped, it never stops the others.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]publisher
	logger     *zap.Logger
}

func New() *Registry {
	return &Registry{
		publishers: make(map[string]publisher),
		logger:     zap.L(),
	}
}

func (r *Registry) Register(name string, p publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.publishers[name]; ok {
		return ErrAlreadyRegistered
	}
	r.publishers[name] = p
	return nil
}

// Names returns the registered sink names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.publishers)
	sort.Strings(names)
	return names
}

// Publish writes row to every sink and returns how many accepted it.
func (r *Registry) Publish(ctx context.Context, row model.Row) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for name, p := range r.publishers {
		if err := p.Write(ctx, row); err != nil {
			r.logger.Error("failed to publish reading", zap.Error(err), zap.String("publisher", name))
			continue
		}
		count++
		r.logger.Debug("published reading", zap.String("publisher", name))
	}
	return count
}
