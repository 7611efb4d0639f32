// Package session owns the forum authentication state and attaches the
// matching credentials to outbound requests.
//
// A Manager moves between four states:
//
//	Anonymous --Login--> Authenticated
//	Anonymous --Login--> PendingSecondFactor --SubmitSecondFactor--> Authenticated
//	Anonymous --ConfigureAPIKey--> APIKeyAuthenticated
//
// Failed logins, a wrong second-factor code, Logout and a rejected API key
// all return to Anonymous. Login and SubmitSecondFactor are mutually
// exclusive: a second caller gets ErrLoginInProgress instead of waiting.
package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/Sternrassler/forum-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var forumSessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "forum_session_transitions_total",
	Help: "Session state transitions",
}, []string{"from", "to"})

// State is the authentication state of a Manager.
type State int

const (
	Anonymous State = iota
	PendingSecondFactor
	Authenticated
	APIKeyAuthenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case PendingSecondFactor:
		return "pending_second_factor"
	case Authenticated:
		return "authenticated"
	case APIKeyAuthenticated:
		return "api_key"
	default:
		return "unknown"
	}
}

// Cookie names carrying a Discourse login.
const (
	CookieAuthToken = "_t"
	CookieSession   = "_forum_session"
)

// Doer sends a logical request through the access layer.
type Doer interface {
	Dispatch(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Identity describes the logged-in user.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Admin    bool   `json:"admin,omitempty"`
}

// Status is a point-in-time view of the session.
type Status struct {
	State    State
	Identity Identity
	ClientID string
}

// Authenticated reports whether requests carry credentials.
func (s Status) Authenticated() bool {
	return s.State == Authenticated || s.State == APIKeyAuthenticated
}

// credentials is the material attached for a cookie login.
type credentials struct {
	cookies []*http.Cookie
	csrf    string
}

// pendingLogin is what a second-factor submission replays.
type pendingLogin struct {
	username string
	password string
	csrf     string
	cookies  []*http.Cookie
}

// Manager is the process-wide session state.
type Manager struct {
	doer    Doer
	baseURL string
	logger  zerolog.Logger

	// loginMu serialises Login and SubmitSecondFactor; it is only ever
	// taken with TryLock.
	loginMu sync.Mutex

	mu       sync.RWMutex
	state    State
	identity Identity
	creds    credentials
	pending  *pendingLogin
	apiKey   string
	clientID string
}

// NewManager creates an anonymous session that logs in through doer.
func NewManager(doer Doer, baseURL string, logger zerolog.Logger) *Manager {
	return &Manager{
		doer:    doer,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{State: m.state, Identity: m.identity, ClientID: m.clientID}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Require fails with ErrAuthenticationRequired unless requests carry credentials.
func (m *Manager) Require() error {
	if m.Status().Authenticated() {
		return nil
	}
	return apierror.New(apierror.KindAuthenticationRequired,
		"log in or configure a user API key first")
}

// Attach adds the credential headers of the current state to h.
// It only reads state.
func (m *Manager) Attach(h http.Header) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.state {
	case Authenticated:
		if cookie := transport.CookieHeader(m.creds.cookies); cookie != "" {
			if existing := h.Get("Cookie"); existing != "" {
				cookie = existing + "; " + cookie
			}
			h.Set("Cookie", cookie)
		}
		if m.creds.csrf != "" {
			h.Set("X-CSRF-Token", m.creds.csrf)
		}
	case APIKeyAuthenticated:
		h.Set("User-Api-Key", m.apiKey)
		h.Set("User-Api-Client-Id", m.clientID)
	}
}

// CacheIdentity names the caller for response-cache partitioning.
// Anonymous sessions return "".
func (m *Manager) CacheIdentity() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.state {
	case Authenticated:
		return m.identity.Username
	case APIKeyAuthenticated:
		return "apikey:" + m.clientID
	default:
		return ""
	}
}

// ConfigureAPIKey switches to User API Key mode without a network call.
// The key is validated lazily by the first authenticated request.
func (m *Manager) ConfigureAPIKey(key, clientID string) error {
	if key == "" || clientID == "" {
		return apierror.New(apierror.KindAuthenticationFailed, "api key and client id are both required")
	}
	if !m.loginMu.TryLock() {
		return apierror.New(apierror.KindLoginInProgress, "another login is in flight")
	}
	defer m.loginMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	m.apiKey = key
	m.clientID = clientID
	m.transitionLocked(APIKeyAuthenticated)
	return nil
}

// Reject demotes an API-key session whose key the forum refused.
// Other states are left alone.
func (m *Manager) Reject(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != APIKeyAuthenticated {
		return
	}
	m.logger.Warn().Str("client_id", m.clientID).Str("reason", reason).Msg("User API key rejected")
	m.clearLocked()
	m.transitionLocked(Anonymous)
}

// Logout forgets all credentials. It fails with LoginInProgress while a
// login is in flight, which would otherwise restore the session.
func (m *Manager) Logout() error {
	if !m.loginMu.TryLock() {
		return apierror.New(apierror.KindLoginInProgress, "cannot log out while a login is in flight")
	}
	defer m.loginMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	m.transitionLocked(Anonymous)
	return nil
}

func (m *Manager) clearLocked() {
	m.identity = Identity{}
	m.creds = credentials{}
	m.pending = nil
	m.apiKey = ""
	m.clientID = ""
}

// transitionLocked records a state change. Callers hold mu.
func (m *Manager) transitionLocked(to State) {
	from := m.state
	m.state = to
	forumSessionTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	m.logger.Info().Str("from", from.String()).Str("state", to.String()).Msg("Session state changed")
}
