package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/Sternrassler/forum-client/pkg/transport"
)

// Discourse second-factor method for TOTP codes.
const secondFactorTOTP = 1

type csrfReply struct {
	CSRF string `json:"csrf"`
}

type loginReply struct {
	Error                string    `json:"error"`
	Reason               string    `json:"reason"`
	SecondFactorRequired bool      `json:"second_factor_required"`
	User                 *Identity `json:"user"`
}

type currentReply struct {
	CurrentUser *Identity `json:"current_user"`
}

// Login signs in with username and password.
//
// On success the session is Authenticated. When the account has a second
// factor the session becomes PendingSecondFactor and ErrSecondFactorRequired
// is returned; finish with SubmitSecondFactor. Bad credentials leave the
// session Anonymous with ErrAuthenticationFailed.
func (m *Manager) Login(ctx context.Context, username, password string) (Status, error) {
	if username == "" || password == "" {
		return m.Status(), apierror.New(apierror.KindAuthenticationFailed, "username and password are required")
	}
	if !m.loginMu.TryLock() {
		return m.Status(), apierror.New(apierror.KindLoginInProgress, "another login is in flight")
	}
	defer m.loginMu.Unlock()

	m.logger.Info().Str("username", username).Msg("Logging in")

	// A new login replaces whatever session was active.
	m.fail()

	csrf, cookies, err := m.fetchCSRF(ctx)
	if err != nil {
		return m.Status(), err
	}

	p := &pendingLogin{username: username, password: password, csrf: csrf, cookies: cookies}
	return m.submit(ctx, p, "")
}

// SubmitSecondFactor completes a login waiting for a one-time code.
// A rejected code returns the session to Anonymous.
func (m *Manager) SubmitSecondFactor(ctx context.Context, code string) (Status, error) {
	if !m.loginMu.TryLock() {
		return m.Status(), apierror.New(apierror.KindLoginInProgress, "another login is in flight")
	}
	defer m.loginMu.Unlock()

	m.mu.RLock()
	p := m.pending
	m.mu.RUnlock()
	if p == nil {
		return m.Status(), apierror.New(apierror.KindAuthenticationRequired, "no login is waiting for a second factor")
	}

	code = strings.TrimSpace(code)
	if code == "" {
		m.fail()
		return m.Status(), apierror.New(apierror.KindAuthenticationFailed, "second factor code is empty")
	}
	return m.submit(ctx, p, code)
}

// submit posts the login form and applies the outcome. Callers hold loginMu.
func (m *Manager) submit(ctx context.Context, p *pendingLogin, code string) (Status, error) {
	body := map[string]any{
		"login":    p.username,
		"password": p.password,
		"remember": true,
	}
	if code != "" {
		body["second_factor_token"] = code
		body["second_factor_method"] = secondFactorTOTP
	}
	req, err := transport.PostJSON("/session.json", body)
	if err != nil {
		return m.Status(), err
	}
	req.Header = http.Header{}
	req.Header.Set("X-CSRF-Token", p.csrf)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", transport.ResolveURL(m.baseURL, "/login"))
	if cookie := transport.CookieHeader(p.cookies); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := m.doer.Dispatch(ctx, req)
	if err != nil {
		if apierror.KindOf(err) == apierror.KindUpstreamRejected {
			m.fail()
			return m.Status(), apierror.Wrap(apierror.KindAuthenticationFailed, err, "login rejected")
		}
		return m.Status(), err
	}

	var reply loginReply
	if err := resp.Decode(&reply); err != nil {
		return m.Status(), apierror.Wrap(apierror.KindInvalidResponse, err, "decode login reply")
	}

	switch {
	case code == "" && (reply.SecondFactorRequired || reply.Reason == "invalid_second_factor"):
		m.mu.Lock()
		m.clearLocked()
		m.pending = p
		m.transitionLocked(PendingSecondFactor)
		m.mu.Unlock()
		return m.Status(), apierror.New(apierror.KindSecondFactorRequired, "enter the code from your authenticator app")

	case reply.Error != "" || reply.SecondFactorRequired:
		m.fail()
		msg := reply.Error
		if msg == "" {
			msg = "second factor rejected"
		}
		return m.Status(), apierror.New(apierror.KindAuthenticationFailed, "%s", msg)
	}

	cookies := mergeCookies(p.cookies, resp.Cookies())
	identity := m.confirmIdentity(ctx, cookies, p.username, reply.User)

	m.mu.Lock()
	m.clearLocked()
	m.identity = identity
	m.creds = credentials{cookies: cookies, csrf: p.csrf}
	m.transitionLocked(Authenticated)
	m.mu.Unlock()

	return m.Status(), nil
}

// fail drops any login progress.
func (m *Manager) fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	if m.state != Anonymous {
		m.transitionLocked(Anonymous)
	}
}

func (m *Manager) fetchCSRF(ctx context.Context) (string, []*http.Cookie, error) {
	req := transport.Get("/session/csrf.json", nil)
	req.Header = http.Header{"X-Requested-With": {"XMLHttpRequest"}}

	resp, err := m.doer.Dispatch(ctx, req)
	if err != nil {
		return "", nil, err
	}
	var reply csrfReply
	if err := resp.Decode(&reply); err != nil {
		return "", nil, apierror.Wrap(apierror.KindInvalidResponse, err, "decode csrf reply")
	}
	if reply.CSRF == "" {
		return "", nil, apierror.New(apierror.KindInvalidResponse, "forum returned an empty csrf token")
	}
	return reply.CSRF, resp.Cookies(), nil
}

// confirmIdentity asks the forum who the new cookies belong to, falling back
// to the login reply and finally the submitted username.
func (m *Manager) confirmIdentity(ctx context.Context, cookies []*http.Cookie, username string, fromReply *Identity) Identity {
	req := transport.Get("/session/current.json", nil)
	req.Header = http.Header{"Cookie": {transport.CookieHeader(cookies)}}

	if cur, err := m.current(ctx, req); err == nil && cur != nil {
		return *cur
	} else if err != nil {
		m.logger.Warn().Err(err).Msg("Could not confirm session identity")
	}
	if fromReply != nil && fromReply.Username != "" {
		return *fromReply
	}
	return Identity{Username: username}
}

func (m *Manager) current(ctx context.Context, req transport.Request) (*Identity, error) {
	resp, err := m.doer.Dispatch(ctx, req)
	if err != nil {
		if apierror.StatusOf(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	var reply currentReply
	if err := resp.Decode(&reply); err != nil {
		return nil, apierror.Wrap(apierror.KindInvalidResponse, err, "decode current session")
	}
	return reply.CurrentUser, nil
}

// Identity returns the logged-in user. API-key sessions resolve the username
// lazily from /session/current.json on first use.
func (m *Manager) Identity(ctx context.Context) (Identity, error) {
	st := m.Status()
	switch st.State {
	case Authenticated:
		return st.Identity, nil
	case APIKeyAuthenticated:
		if st.Identity.Username != "" {
			return st.Identity, nil
		}
	default:
		return Identity{}, m.Require()
	}

	// Attach adds the API key headers.
	cur, err := m.current(ctx, transport.Get("/session/current.json", nil))
	if err != nil {
		return Identity{}, err
	}
	if cur == nil {
		return Identity{}, apierror.New(apierror.KindAuthenticationFailed, "user api key has no session")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == APIKeyAuthenticated && m.clientID == st.ClientID {
		m.identity = *cur
	}
	return *cur, nil
}

// mergeCookies returns base with same-named cookies replaced by updates.
// Cookies deleted by the server (MaxAge < 0) are dropped.
func mergeCookies(base, updates []*http.Cookie) []*http.Cookie {
	var order []string
	byName := map[string]*http.Cookie{}
	for _, list := range [][]*http.Cookie{base, updates} {
		for _, c := range list {
			if c == nil || c.Name == "" {
				continue
			}
			if _, seen := byName[c.Name]; !seen {
				order = append(order, c.Name)
			}
			byName[c.Name] = c
		}
	}
	out := make([]*http.Cookie, 0, len(order))
	for _, name := range order {
		if c := byName[name]; c.MaxAge >= 0 {
			out = append(out, c)
		}
	}
	return out
}
