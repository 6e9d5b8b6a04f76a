package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrInvalid        = errors.New("invalid settings")
	ErrUnknownSection = errors.New("unknown settings section")
)

// Service holds the current settings in memory and persists every change
// through its Store.
type Service struct {
	store     Store
	validator *Validator
	logger    *zap.Logger

	mu      sync.RWMutex
	current Settings
}

// NewService loads saved settings, falling back to defaults when nothing is
// stored or the stored document no longer validates.
func NewService(ctx context.Context, store Store, logger *zap.Logger) (*Service, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:     store,
		validator: validator,
		logger:    logger,
		current:   Default(),
	}

	loaded, ok, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Info("No saved settings, using defaults")
		return s, nil
	}

	if err := validator.Validate(loaded); err != nil {
		logger.Warn("Saved settings are invalid, using defaults", zap.Error(err))
		return s, nil
	}

	s.current = loaded
	return s, nil
}

func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace validates and saves a full settings document.
func (s *Service) Replace(ctx context.Context, next Settings) (Settings, error) {
	if err := s.validator.Validate(next); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, next); err != nil {
		return Settings{}, err
	}
	s.current = next

	s.logger.Info("Settings saved")
	return next, nil
}

// PatchSection merges the given fields into one section. Fields not present
// in patch keep their current value.
func (s *Service) PatchSection(ctx context.Context, section string, patch json.RawMessage) (Settings, error) {
	var fields map[string]any
	if err := json.Unmarshal(patch, &fields); err != nil {
		return Settings{}, fmt.Errorf("%w: section patch must be a JSON object: %v", ErrInvalid, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := toDocument(s.current)
	if err != nil {
		return Settings{}, err
	}

	target, ok := doc[section].(map[string]any)
	if !ok {
		return Settings{}, fmt.Errorf("%w: %s", ErrUnknownSection, section)
	}
	for k, v := range fields {
		target[k] = v
	}

	if err := s.validator.ValidateDocument(doc); err != nil {
		return Settings{}, err
	}

	merged, err := fromDocument(doc)
	if err != nil {
		return Settings{}, err
	}

	if err := s.store.Save(ctx, merged); err != nil {
		return Settings{}, err
	}
	s.current = merged

	s.logger.Info("Settings section updated", zap.String("section", section))
	return merged, nil
}

// Reset restores and saves the defaults.
func (s *Service) Reset(ctx context.Context) (Settings, error) {
	return s.Replace(ctx, Default())
}

func (s *Service) MaintenanceIntervalDays() int {
	return s.Get().Device.DefaultMaintenanceInterval
}

func fromDocument(doc map[string]any) (Settings, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to encode settings: %w", err)
	}

	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return out, nil
}
