package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/forum-client/pkg/apierror"
)

// ErrPartialCredentials reports a strategy with only some of its settings.
var ErrPartialCredentials = errors.New("partial credentials")

// Strategy is one way of authenticating at startup.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// Configured reports whether all settings are present. Some but not all
	// settings present is an ErrPartialCredentials error.
	Configured() (bool, error)

	// Apply authenticates m.
	Apply(ctx context.Context, m *Manager) error
}

// PasswordStrategy logs in with username and password. SecondFactor, when
// set, answers a second-factor prompt.
type PasswordStrategy struct {
	Username     string
	Password     string
	SecondFactor string
}

// Name implements Strategy.
func (PasswordStrategy) Name() string { return "password" }

// Configured implements Strategy.
func (s PasswordStrategy) Configured() (bool, error) {
	switch {
	case s.Username != "" && s.Password != "":
		return true, nil
	case s.Username != "" || s.Password != "":
		return false, fmt.Errorf("%w: username and password must both be set", ErrPartialCredentials)
	default:
		return false, nil
	}
}

// Apply implements Strategy.
func (s PasswordStrategy) Apply(ctx context.Context, m *Manager) error {
	_, err := m.Login(ctx, s.Username, s.Password)
	if errors.Is(err, apierror.ErrSecondFactorRequired) && s.SecondFactor != "" {
		_, err = m.SubmitSecondFactor(ctx, s.SecondFactor)
	}
	return err
}

// APIKeyStrategy configures a Discourse User API Key.
type APIKeyStrategy struct {
	Key      string
	ClientID string
}

// Name implements Strategy.
func (APIKeyStrategy) Name() string { return "api_key" }

// Configured implements Strategy.
func (s APIKeyStrategy) Configured() (bool, error) {
	switch {
	case s.Key != "" && s.ClientID != "":
		return true, nil
	case s.Key != "" || s.ClientID != "":
		return false, fmt.Errorf("%w: api key and client id must both be set", ErrPartialCredentials)
	default:
		return false, nil
	}
}

// Apply implements Strategy.
func (s APIKeyStrategy) Apply(_ context.Context, m *Manager) error {
	return m.ConfigureAPIKey(s.Key, s.ClientID)
}

// Bootstrap authenticates m with the first fully configured strategy, in
// order. A partially configured strategy stops the walk with an error rather
// than falling through to the next one. With nothing configured the session
// stays Anonymous.
func Bootstrap(ctx context.Context, m *Manager, strategies ...Strategy) error {
	for _, s := range strategies {
		ok, err := s.Configured()
		if err != nil {
			return fmt.Errorf("%s strategy: %w", s.Name(), err)
		}
		if !ok {
			continue
		}
		m.logger.Info().Str("strategy", s.Name()).Msg("Authenticating at startup")
		if err := s.Apply(ctx, m); err != nil {
			return fmt.Errorf("%s strategy: %w", s.Name(), err)
		}
		return nil
	}
	m.logger.Info().Msg("No credentials configured, staying anonymous")
	return nil
}
