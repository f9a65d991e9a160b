package game

import (
	"context"

	"github.com/playmatatu/duel/internal/protocol"
)

func (m *Manager) onUpdateProfile(pr *presence, env protocol.Envelope) {
	var req protocol.UpdateProfile
	if err := env.Decode(&req); err != nil {
		send(pr.conn, protocol.TypeProfileError, protocol.ProfileError{Reason: "malformed request"})
		return
	}
	upd, err := ValidateProfileUpdate(req.DisplayName, req.BirthDate, m.now())
	if err != nil {
		send(pr.conn, protocol.TypeProfileError, protocol.ProfileError{Reason: err.Error()})
		return
	}
	identity, connID := pr.conn.Identity(), pr.conn.ID()
	m.async(func(ctx context.Context) command {
		prof, err := m.store.UpdateProfile(ctx, identity, upd.DisplayName, upd.BirthDate)
		return profileSavedCmd{identity: identity, connID: connID, profile: prof, err: err}
	})
}

func (m *Manager) onProfileSaved(c profileSavedCmd) {
	pr, ok := m.presences[c.identity]
	if !ok || pr.conn.ID() != c.connID {
		return
	}
	if c.err != nil {
		m.logger.Error().Err(c.err).Str("identity", c.identity).Msg("profile update failed")
		send(pr.conn, protocol.TypeProfileError, protocol.ProfileError{Reason: reasonProfileSave})
		return
	}
	if pr.player != nil {
		pr.player.DisplayName = c.profile.DisplayName
	}
	send(pr.conn, protocol.TypeProfileUpdated, protocol.ProfileUpdated{
		DisplayName: c.profile.DisplayName,
		BirthDate:   c.profile.BirthDateString(),
	})
}
