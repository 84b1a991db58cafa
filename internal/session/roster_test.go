package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetRosterSizesByClientID(t *testing.T) {
	s := &Session{}
	s.ResetRoster(4)
	require.Len(t, s.LobbyPlayers, 4)
	for i, slot := range s.LobbyPlayers {
		assert.Equal(t, uint8(i), slot.ClientID)
		assert.False(t, slot.Present)
	}
}

func TestSetAndClearMemberKeyedByClientID(t *testing.T) {
	s := &Session{}
	s.ResetRoster(12)

	s.SetMember(5, 0xDEADBEEF)
	assert.True(t, s.MemberPresent(5))
	assert.False(t, s.MemberPresent(6))

	s.ClearMember(5)
	assert.False(t, s.MemberPresent(5))
}

func TestSetLeaderReportsOnlyTransitions(t *testing.T) {
	s := &Session{}

	assert.True(t, s.SetLeader(2), "first assignment is a transition")
	assert.False(t, s.SetLeader(2), "no-op reassignment is not a transition")
	assert.True(t, s.SetLeader(3), "changing leader is a transition")
}

func TestMemberPresentRequiresNonZeroGuildCard(t *testing.T) {
	s := &Session{}
	s.ResetRoster(4)
	s.SetMember(0, 0)
	assert.False(t, s.MemberPresent(0), "a zero guild card number means the slot is empty")
}
