package session

// ResetRoster resizes LobbyPlayers to n slots (4 for a game join, 12 for a
// lobby join, spec invariant I3) and clears them.
func (s *Session) ResetRoster(n int) {
	s.LobbyPlayers = make([]RosterSlot, n)
	for i := range s.LobbyPlayers {
		s.LobbyPlayers[i].ClientID = uint8(i)
	}
}

// slotFor returns the slot for clientID, or nil if no slot in LobbyPlayers
// carries that client ID; the roster is never grown here (a well-formed join
// frame always ResetRoster's first).
func (s *Session) slotFor(clientID uint8) *RosterSlot {
	for i := range s.LobbyPlayers {
		if s.LobbyPlayers[i].ClientID == clientID {
			return &s.LobbyPlayers[i]
		}
	}
	return nil
}

// SetMember records guildCardNumber at clientID's slot (spec invariant I3:
// "entries are keyed by their client_id field, not position").
func (s *Session) SetMember(clientID uint8, guildCardNumber uint32) {
	slot := s.slotFor(clientID)
	if slot == nil {
		return
	}
	slot.Present = true
	slot.GuildCardNumber = guildCardNumber
}

// ClearMember empties clientID's slot on a leave frame (spec invariant I4).
func (s *Session) ClearMember(clientID uint8) {
	slot := s.slotFor(clientID)
	if slot == nil {
		return
	}
	*slot = RosterSlot{ClientID: clientID}
}

// SetLeader updates LeaderClientID, reporting whether this is a transition
// a notification must be emitted for (spec invariant I4: "a notification is
// emitted to the client only on transitions").
func (s *Session) SetLeader(clientID uint8) (changed bool) {
	if s.LeaderClientID == clientID {
		return false
	}
	s.LeaderClientID = clientID
	return true
}

// MemberPresent reports whether clientID's slot is occupied (spec
// invariant P4: "lobby_players[id].guild_card_number == 0 iff that slot has
// no member").
func (s *Session) MemberPresent(clientID uint8) bool {
	slot := s.slotFor(clientID)
	return slot != nil && slot.Present && slot.GuildCardNumber != 0
}
