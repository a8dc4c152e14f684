package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMembershipJoinIsIdempotent(t *testing.T) {
	m := NewMembershipIndex()

	assert.True(t, m.Join("s1", "alice"))
	assert.False(t, m.Join("s1", "alice"))
	assert.Equal(t, []string{"alice"}, m.MembersOf("s1"))
	assert.True(t, m.IsMember("s1", "alice"))
}

func TestMembershipLeaveAll(t *testing.T) {
	m := NewMembershipIndex()
	m.Join("s1", "alice")
	m.Join("s2", "alice")
	m.Join("s2", "bob")
	m.Join("s3", "bob")

	assert.ElementsMatch(t, []string{"s1", "s2"}, m.LeaveAll("alice"))
	assert.Empty(t, m.MembersOf("s1"))
	assert.Equal(t, []string{"bob"}, m.MembersOf("s2"))
	assert.Empty(t, m.ServersOf("alice"))
	assert.ElementsMatch(t, []string{"s2", "s3"}, m.ServersOf("bob"))

	assert.Empty(t, m.LeaveAll("alice"))
}

func TestMembershipMembersOfIsSnapshot(t *testing.T) {
	m := NewMembershipIndex()
	m.Join("s1", "alice")

	members := m.MembersOf("s1")
	m.Join("s1", "bob")
	m.LeaveAll("alice")

	assert.Equal(t, []string{"alice"}, members)
	assert.Empty(t, m.MembersOf("unknown"))
}
