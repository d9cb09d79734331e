package session

import (
	"context"
	"time"

	"magictunnel/pkg/logging"
	"magictunnel/pkg/mcperrors"
)

const subsystem = "SessionStore"

// RefreshFunc exchanges a refresh token for a new access token. Implemented
// per OAuth provider and supplied by the caller of NewManager.
type RefreshFunc func(ctx context.Context, token Token) (Token, error)

// Manager wraps a Backend with proactive refresh-before-expiry, the
// "Session tokens are refreshed proactively before expiry" behavior from
// SPEC_FULL.md §3. It owns a background sweep, grounded on the teacher's
// retry-ticker pattern in aggregator/manager.go's retryFailedRegistrations.
type Manager struct {
	backend Backend
	refresh RefreshFunc
	margin  time.Duration
}

// NewManager creates a Manager. margin is how far ahead of expiry a token is
// proactively refreshed; refresh may be nil if this provider never refreshes
// (e.g. long-lived API keys), in which case Get never attempts it.
func NewManager(backend Backend, refresh RefreshFunc, margin time.Duration) *Manager {
	if margin <= 0 {
		margin = 60 * time.Second
	}
	return &Manager{backend: backend, refresh: refresh, margin: margin}
}

// Get returns a usable token for (userID, provider), refreshing it first if
// it is within the proactive-refresh margin of expiring. A refresh failure
// that returns a token unusable for the caller's purposes is a terminal
// failure per §3's token lifecycle: the caller should treat it as
// "re-auth required" rather than retrying.
func (m *Manager) Get(ctx context.Context, userID, provider string) (Token, error) {
	t, ok, err := m.backend.Get(userID, provider)
	if err != nil {
		return Token{}, err
	}
	if !ok {
		return Token{}, mcperrors.New(mcperrors.NotFound, "no session token for "+provider)
	}

	if !t.ExpiringWithin(m.margin) {
		return t, nil
	}
	if m.refresh == nil || t.RefreshToken == "" {
		return t, nil
	}

	refreshed, err := m.refresh(ctx, t)
	if err != nil {
		logging.Audit(logging.AuditEvent{
			Action: "session_refresh", Outcome: "failure",
			SessionID: userID, Target: provider, Error: err.Error(),
		})
		return Token{}, mcperrors.Wrap(mcperrors.Unauthorized, err, "refreshing session token for "+provider)
	}

	if err := m.backend.Put(refreshed); err != nil {
		logging.Error(subsystem, err, "failed to persist refreshed token for %s/%s", logging.TruncateSessionID(userID), provider)
	}
	logging.Audit(logging.AuditEvent{
		Action: "session_refresh", Outcome: "success",
		SessionID: userID, Target: provider,
	})
	return refreshed, nil
}

// Put stores or overwrites a token.
func (m *Manager) Put(token Token) error {
	return m.backend.Put(token)
}

// Revoke deletes a stored token, logging an audit event.
func (m *Manager) Revoke(userID, provider string) error {
	err := m.backend.Delete(userID, provider)
	logging.Audit(logging.AuditEvent{
		Action: "session_revoke",
		Outcome: func() string {
			if err != nil {
				return "failure"
			}
			return "success"
		}(),
		SessionID: userID, Target: provider,
	})
	return err
}

// RunRefreshSweep blocks, proactively refreshing every stored token whose
// expiry falls within the margin, once per interval, until ctx is
// cancelled. Intended to run in its own goroutine from process bootstrap.
func (m *Manager) RunRefreshSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

func (m *Manager) sweepOnce(ctx context.Context) {
	keys, err := m.backend.List()
	if err != nil {
		logging.Error(subsystem, err, "refresh sweep: failed to list tokens")
		return
	}
	for _, k := range keys {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.Get(ctx, k.UserID, k.Provider); err != nil {
			logging.Debug(subsystem, "refresh sweep: %s/%s not refreshed: %v", logging.TruncateSessionID(k.UserID), k.Provider, err)
		}
	}
}
