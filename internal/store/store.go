// Package store persists saved strategies, positions, notes and gateway
// settings behind a small backend interface with in-memory and SQLite
// implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

const (
	DefaultGatewayHost = "127.0.0.1"
	DefaultGatewayPort = 5000
)

// Backend is the raw persistence layer. Getters return a NotFound error for
// missing records.
type Backend interface {
	GetStrategy(ctx context.Context, underlying, name string) (*models.Strategy, error)
	ListStrategies(ctx context.Context) ([]*models.Strategy, error)
	PutStrategy(ctx context.Context, strategy *models.Strategy) error
	DeleteStrategy(ctx context.Context, underlying, name string) error

	GetPosition(ctx context.Context, id string) (*models.Position, error)
	ListPositions(ctx context.Context) ([]*models.Position, error)
	PutPosition(ctx context.Context, position *models.Position) error
	DeletePosition(ctx context.Context, id string) error

	GetNote(ctx context.Context, key string) (string, error)
	PutNote(ctx context.Context, key, content string) error

	GetGatewaySettings(ctx context.Context) (*models.GatewaySettings, error)
	PutGatewaySettings(ctx context.Context, settings models.GatewaySettings) error

	Close() error
}

// Store applies the record rules on top of a Backend
type Store struct {
	backend Backend
	now     func() time.Time
	log     *logger.Logger
}

// New creates a store over backend
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		now:     time.Now,
		log:     logger.GetLogger("store"),
	}
}

// WithClock replaces the clock used for timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

func normalizeUnderlying(underlying string) string {
	return strings.ToUpper(strings.TrimSpace(underlying))
}

func strategyNoteKey(underlying, name string) string {
	return "strategy/" + normalizeUnderlying(underlying) + "/" + name
}

func positionNoteKey(id string) string {
	return "position/" + id
}

// Strategies lists saved strategies, optionally for one underlying
func (s *Store) Strategies(ctx context.Context, underlying string) ([]*models.Strategy, error) {
	all, err := s.backend.ListStrategies(ctx)
	if err != nil {
		return nil, err
	}
	underlying = normalizeUnderlying(underlying)

	out := make([]*models.Strategy, 0, len(all))
	for _, st := range all {
		if underlying == "" || st.Underlying == underlying {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Underlying != out[j].Underlying {
			return out[i].Underlying < out[j].Underlying
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SaveStrategy creates or replaces a strategy. The type and creator of an
// existing strategy are kept; new strategies are user strategies and get a
// template note.
func (s *Store) SaveStrategy(ctx context.Context, strategy *models.Strategy) (*models.Strategy, error) {
	if strategy == nil || strings.TrimSpace(strategy.Underlying) == "" || strings.TrimSpace(strategy.Name) == "" {
		return nil, errors.InvalidArgument("underlying, name, strategy required")
	}
	saved := *strategy
	saved.Underlying = normalizeUnderlying(strategy.Underlying)
	saved.UpdatedAt = s.now()

	existing, err := s.backend.GetStrategy(ctx, saved.Underlying, saved.Name)
	switch {
	case err == nil:
		saved.Type = existing.Type
		if existing.Creator != "" {
			saved.Creator = existing.Creator
		}
	case errors.IsType(err, errors.ErrorTypeNotFound):
		saved.Type = models.StrategyTypeUser
	default:
		return nil, err
	}
	if saved.Type == "" {
		saved.Type = models.StrategyTypeUser
	}

	if err := s.backend.PutStrategy(ctx, &saved); err != nil {
		return nil, err
	}

	if _, err := s.backend.GetNote(ctx, strategyNoteKey(saved.Underlying, saved.Name)); errors.IsType(err, errors.ErrorTypeNotFound) {
		note, _ := truncateNote(strategyTemplate(saved.Underlying, saved.Name, saved.UpdatedAt))
		if err := s.backend.PutNote(ctx, strategyNoteKey(saved.Underlying, saved.Name), note); err != nil {
			s.log.Warnf("Failed to create note for strategy %s/%s: %v", saved.Underlying, saved.Name, err)
		}
	}

	s.log.Debugf("Saved strategy %s/%s", saved.Underlying, saved.Name)
	return &saved, nil
}

func strategyTemplate(underlying, name string, at time.Time) string {
	return fmt.Sprintf("Strategy: %s\nUnderlying: %s\nUpdated: %s\n\n"+
		"When things go against:\n"+
		"- Describe adjustments to consider (roll strikes, reduce lots, hedge, exit)\n"+
		"- Define thresholds (IV spike, delta, underlying move)\n"+
		"- Contingency plan\n", name, underlying, at.UTC().Format(time.RFC3339))
}

// DeleteStrategy removes a strategy unless it is protected
func (s *Store) DeleteStrategy(ctx context.Context, underlying, name string) error {
	if underlying == "" || name == "" {
		return errors.InvalidArgument("underlying and name required")
	}
	underlying = normalizeUnderlying(underlying)

	existing, err := s.backend.GetStrategy(ctx, underlying, name)
	if err != nil {
		return err
	}
	if existing.Protected() {
		return errors.PermissionDenied("protected strategy cannot be deleted")
	}
	return s.backend.DeleteStrategy(ctx, underlying, name)
}

// PatchStrategyMeta updates the backend-owned type and creator of a strategy
func (s *Store) PatchStrategyMeta(ctx context.Context, underlying, name string, meta models.StrategyMeta) (*models.Strategy, error) {
	if underlying == "" || name == "" {
		return nil, errors.InvalidArgument("underlying and name required")
	}
	if meta.Type != nil && *meta.Type != models.StrategyTypeUser && *meta.Type != models.StrategyTypeDefault {
		return nil, errors.InvalidArgument("invalid type")
	}
	underlying = normalizeUnderlying(underlying)

	existing, err := s.backend.GetStrategy(ctx, underlying, name)
	if err != nil {
		return nil, err
	}
	if meta.Type != nil {
		existing.Type = *meta.Type
	}
	if meta.Creator != nil {
		existing.Creator = *meta.Creator
	}
	if err := s.backend.PutStrategy(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Positions lists positions in creation order, optionally for one underlying
func (s *Store) Positions(ctx context.Context, underlying string) ([]*models.Position, error) {
	all, err := s.backend.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	underlying = normalizeUnderlying(underlying)

	out := make([]*models.Position, 0, len(all))
	for _, p := range all {
		if underlying == "" || p.Underlying == underlying {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Position returns one position
func (s *Store) Position(ctx context.Context, id string) (*models.Position, error) {
	return s.backend.GetPosition(ctx, id)
}

// CreatePosition stores a new position, assigning an id and timestamps and
// recording fill details on each leg
func (s *Store) CreatePosition(ctx context.Context, position *models.Position) (*models.Position, error) {
	if position == nil || strings.TrimSpace(position.Underlying) == "" || position.Expiry.IsZero() || position.Legs == nil {
		return nil, errors.InvalidArgument("invalid position payload")
	}
	now := s.now()

	p := *position
	p.Underlying = normalizeUnderlying(position.Underlying)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = p.Status.Normalize()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.EntryAt.IsZero() {
		p.EntryAt = p.CreatedAt
	}
	p.UpdatedAt = now
	if p.ExitAt == nil && p.Status == models.PositionStatusClosed {
		p.ExitAt = &now
	}
	p.Exit = p.Exit.Normalize()
	p.Legs = backfillLegs(position.Legs, nil, now)

	if err := s.backend.PutPosition(ctx, &p); err != nil {
		return nil, err
	}
	s.log.Debugf("Created position %s for %s with %d legs", p.ID, p.Underlying, len(p.Legs))
	return &p, nil
}

// UpdatePosition merges patch into a stored position
func (s *Store) UpdatePosition(ctx context.Context, id string, patch models.PositionPatch) (*models.Position, error) {
	prev, err := s.backend.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	p := *prev
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Expiry != nil {
		p.Expiry = *patch.Expiry
	}
	if patch.Status != nil {
		p.Status = patch.Status.Normalize()
	}
	if patch.Exit != nil {
		p.Exit = *patch.Exit
	}
	if patch.EntryAt != nil {
		p.EntryAt = *patch.EntryAt
	}
	if patch.ExitAt != nil {
		p.ExitAt = patch.ExitAt
	}
	if patch.Legs != nil {
		p.Legs = backfillLegs(patch.Legs, prev.Legs, now)
	}

	p.UpdatedAt = now
	if p.Status == models.PositionStatusClosed && p.ExitAt == nil {
		p.ExitAt = &now
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.EntryAt.IsZero() {
		p.EntryAt = p.CreatedAt
	}
	p.Exit = p.Exit.Normalize()

	if err := s.backend.PutPosition(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePosition removes a position; deleting a missing id is not an error
func (s *Store) DeletePosition(ctx context.Context, id string) error {
	err := s.backend.DeletePosition(ctx, id)
	if errors.IsType(err, errors.ErrorTypeNotFound) {
		return nil
	}
	return err
}

// backfillLegs fills traded price, traded time and entry premium from the
// previous legs at the same index, then from the leg's own premium
func backfillLegs(legs, prev []models.PositionLeg, now time.Time) []models.PositionLeg {
	out := make([]models.PositionLeg, len(legs))
	for i, leg := range legs {
		var before *models.PositionLeg
		if i < len(prev) {
			before = &prev[i]
		}

		if leg.TradedPrice == nil {
			switch {
			case before != nil && before.TradedPrice != nil:
				leg.TradedPrice = before.TradedPrice
			case leg.Premium != nil:
				leg.TradedPrice = models.Float64(*leg.Premium)
			}
		}
		if leg.TradedAt == nil {
			if before != nil && before.TradedAt != nil {
				leg.TradedAt = before.TradedAt
			} else {
				at := now
				leg.TradedAt = &at
			}
		}
		if leg.PremiumAtEntry == nil {
			switch {
			case before != nil && before.PremiumAtEntry != nil:
				leg.PremiumAtEntry = before.PremiumAtEntry
			case leg.TradedPrice != nil:
				lots := leg.EffectiveLots()
				if leg.Lots == 0 && before != nil {
					lots = before.EffectiveLots()
				}
				leg.PremiumAtEntry = models.Float64(*leg.TradedPrice * float64(lots))
			}
		}
		out[i] = leg
	}
	return out
}

func truncateNote(content string) (string, bool) {
	runes := []rune(content)
	if len(runes) <= models.NoteMaxLength {
		return content, false
	}
	return string(runes[:models.NoteMaxLength]), true
}

func noteOf(content string, truncated bool) models.Note {
	return models.Note{Content: content, Truncated: truncated, Length: len([]rune(content))}
}

func (s *Store) readNote(ctx context.Context, key string) (models.Note, error) {
	raw, err := s.backend.GetNote(ctx, key)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return models.Note{}, errors.NotFound("note not found")
		}
		return models.Note{}, err
	}
	content, truncated := truncateNote(raw)
	return noteOf(content, truncated), nil
}

func (s *Store) writeNote(ctx context.Context, key, content string) (models.Note, error) {
	trimmed, truncated := truncateNote(content)
	if err := s.backend.PutNote(ctx, key, trimmed); err != nil {
		return models.Note{}, err
	}
	return noteOf(trimmed, truncated), nil
}

// StrategyNote returns the note of a strategy
func (s *Store) StrategyNote(ctx context.Context, underlying, name string) (models.Note, error) {
	if underlying == "" || name == "" {
		return models.Note{}, errors.InvalidArgument("underlying and name required")
	}
	return s.readNote(ctx, strategyNoteKey(underlying, name))
}

// SetStrategyNote creates or replaces the note of a strategy
func (s *Store) SetStrategyNote(ctx context.Context, underlying, name, content string) (models.Note, error) {
	if underlying == "" || name == "" {
		return models.Note{}, errors.InvalidArgument("underlying, name, content required")
	}
	return s.writeNote(ctx, strategyNoteKey(underlying, name), content)
}

// PositionNote returns the note of a position
func (s *Store) PositionNote(ctx context.Context, id string) (models.Note, error) {
	if id == "" {
		return models.Note{}, errors.InvalidArgument("id required")
	}
	return s.readNote(ctx, positionNoteKey(id))
}

// SetPositionNote writes the note of a position. The first write with empty
// content copies the note of the strategy the position came from.
func (s *Store) SetPositionNote(ctx context.Context, id, content, underlying, name string) (models.Note, error) {
	if id == "" {
		return models.Note{}, errors.InvalidArgument("id and content required")
	}
	key := positionNoteKey(id)

	if content == "" && underlying != "" && name != "" {
		_, err := s.backend.GetNote(ctx, key)
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			if seed, err := s.backend.GetNote(ctx, strategyNoteKey(underlying, name)); err == nil {
				content = seed
			}
		}
	}
	return s.writeNote(ctx, key, content)
}

// GatewaySettings returns the stored gateway settings with defaults applied
func (s *Store) GatewaySettings(ctx context.Context) (models.GatewaySettings, error) {
	settings, err := s.backend.GetGatewaySettings(ctx)
	if err != nil && !errors.IsType(err, errors.ErrorTypeNotFound) {
		return models.GatewaySettings{}, err
	}
	var out models.GatewaySettings
	if settings != nil {
		out = *settings
	}
	if out.Host == "" {
		out.Host = DefaultGatewayHost
	}
	if out.Port <= 0 {
		out.Port = DefaultGatewayPort
	}
	return out, nil
}

// UpdateGatewaySettings applies patch to the stored gateway settings
func (s *Store) UpdateGatewaySettings(ctx context.Context, patch models.GatewayPatch) (models.GatewaySettings, error) {
	if patch.Port != nil && *patch.Port <= 0 {
		return models.GatewaySettings{}, errors.InvalidArgument("port must be positive integer")
	}
	current, err := s.GatewaySettings(ctx)
	if err != nil {
		return models.GatewaySettings{}, err
	}
	if patch.APIKey != nil {
		current.APIKey = *patch.APIKey
	}
	if patch.Host != nil {
		current.Host = strings.TrimSpace(*patch.Host)
	}
	if patch.Port != nil {
		current.Port = *patch.Port
	}
	if err := s.backend.PutGatewaySettings(ctx, current); err != nil {
		return models.GatewaySettings{}, err
	}
	return s.GatewaySettings(ctx)
}
