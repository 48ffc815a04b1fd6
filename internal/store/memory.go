package store

import (
	"context"
	"sync"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

// MemoryBackend implements an in-memory Backend
type MemoryBackend struct {
	strategies map[string]*models.Strategy
	positions  map[string]*models.Position
	notes      map[string]string
	settings   *models.GatewaySettings
	mu         sync.RWMutex
}

// NewMemoryBackend creates a new in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		strategies: make(map[string]*models.Strategy),
		positions:  make(map[string]*models.Position),
		notes:      make(map[string]string),
	}
}

func strategyKey(underlying, name string) string {
	return underlying + "\x00" + name
}

func cloneStrategy(s *models.Strategy) *models.Strategy {
	out := *s
	out.Legs = append([]models.OptionLeg(nil), s.Legs...)
	return &out
}

func clonePosition(p *models.Position) *models.Position {
	out := *p
	out.Legs = append([]models.PositionLeg(nil), p.Legs...)
	return &out
}

// GetStrategy retrieves a strategy by underlying and name
func (b *MemoryBackend) GetStrategy(_ context.Context, underlying, name string) (*models.Strategy, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, exists := b.strategies[strategyKey(underlying, name)]
	if !exists {
		return nil, errors.NotFoundf("strategy not found: %s/%s", underlying, name)
	}
	return cloneStrategy(s), nil
}

// ListStrategies returns all stored strategies
func (b *MemoryBackend) ListStrategies(_ context.Context) ([]*models.Strategy, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*models.Strategy, 0, len(b.strategies))
	for _, s := range b.strategies {
		out = append(out, cloneStrategy(s))
	}
	return out, nil
}

// PutStrategy saves or replaces a strategy
func (b *MemoryBackend) PutStrategy(_ context.Context, s *models.Strategy) error {
	if s == nil {
		return errors.InvalidArgument("cannot save nil strategy")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.strategies[strategyKey(s.Underlying, s.Name)] = cloneStrategy(s)
	return nil
}

// DeleteStrategy removes a strategy
func (b *MemoryBackend) DeleteStrategy(_ context.Context, underlying, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strategyKey(underlying, name)
	if _, exists := b.strategies[key]; !exists {
		return errors.NotFoundf("strategy not found: %s/%s", underlying, name)
	}
	delete(b.strategies, key)
	return nil
}

// GetPosition retrieves a position by ID
func (b *MemoryBackend) GetPosition(_ context.Context, id string) (*models.Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, exists := b.positions[id]
	if !exists {
		return nil, errors.NotFound("position not found: " + id)
	}
	return clonePosition(p), nil
}

// ListPositions returns all stored positions
func (b *MemoryBackend) ListPositions(_ context.Context) ([]*models.Position, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*models.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, clonePosition(p))
	}
	return out, nil
}

// PutPosition saves or replaces a position
func (b *MemoryBackend) PutPosition(_ context.Context, p *models.Position) error {
	if p == nil {
		return errors.InvalidArgument("cannot save nil position")
	}
	if p.ID == "" {
		return errors.InvalidArgument("position ID cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.positions[p.ID] = clonePosition(p)
	return nil
}

// DeletePosition removes a position by ID
func (b *MemoryBackend) DeletePosition(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.positions[id]; !exists {
		return errors.NotFound("position not found: " + id)
	}
	delete(b.positions, id)
	return nil
}

// GetNote returns the note stored under key
func (b *MemoryBackend) GetNote(_ context.Context, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	content, exists := b.notes[key]
	if !exists {
		return "", errors.NotFound("note not found: " + key)
	}
	return content, nil
}

// PutNote stores a note under key
func (b *MemoryBackend) PutNote(_ context.Context, key, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.notes[key] = content
	return nil
}

// GetGatewaySettings returns the stored settings
func (b *MemoryBackend) GetGatewaySettings(_ context.Context) (*models.GatewaySettings, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.settings == nil {
		return nil, errors.NotFound("gateway settings not found")
	}
	out := *b.settings
	return &out, nil
}

// PutGatewaySettings replaces the stored settings
func (b *MemoryBackend) PutGatewaySettings(_ context.Context, settings models.GatewaySettings) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.settings = &settings
	return nil
}

// Close is a no-op
func (b *MemoryBackend) Close() error {
	return nil
}
