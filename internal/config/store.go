package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldError describes one rejected configuration field.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ValidationError is returned when a configuration fails validation.
// The previously active configuration is left untouched.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
	Err    error        `json:"-"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid config: %v", e.Err)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s (%s=%s)", f.Field, f.Tag, f.Param))
		} else {
			parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Tag))
		}
	}
	return "invalid config: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks cfg against its struct rules.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Err: err}
	}
	out := &ValidationError{Err: err}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: strings.TrimPrefix(fe.Namespace(), "Config."),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}

// Store holds the live configuration and serializes updates to it.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore validates cfg and wraps it in a Store.
func NewStore(cfg Config) (*Store, error) {
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &Store{cfg: cfg.Clone()}, nil
}

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to a copy of the current configuration and swaps it in
// only if the result validates. On failure the prior configuration stays active.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	fn(&next)
	if err := Validate(&next); err != nil {
		return s.cfg.Clone(), err
	}
	s.cfg = next
	return next.Clone(), nil
}
