package runboard_test

import (
	"testing"

	runboard "github.com/goliatone/go-runboard"
	"github.com/stretchr/testify/assert"
)

func TestRoleGates(t *testing.T) {
	assert.True(t, runboard.CanRequestConfirmation(runboard.RoleRegistered))
	assert.False(t, runboard.CanRequestConfirmation(runboard.RoleConfirmed))
	assert.False(t, runboard.CanRequestConfirmation(runboard.RoleAdministrator))
	assert.False(t, runboard.CanRequestConfirmation(runboard.RoleBanned))

	assert.False(t, runboard.CanRequestRecovery(runboard.RoleRegistered))
	assert.True(t, runboard.CanRequestRecovery(runboard.RoleConfirmed))
	assert.True(t, runboard.CanRequestRecovery(runboard.RoleAdministrator))
	assert.False(t, runboard.CanRequestRecovery(runboard.RoleBanned))
}

func TestParseRole(t *testing.T) {
	role, ok := runboard.ParseRole("confirmed")
	assert.True(t, ok)
	assert.Equal(t, runboard.RoleConfirmed, role)

	_, ok = runboard.ParseRole("superuser")
	assert.False(t, ok)
}

func TestIsAtLeast(t *testing.T) {
	assert.True(t, runboard.IsAtLeast(runboard.RoleAdministrator, runboard.RoleConfirmed))
	assert.True(t, runboard.IsAtLeast(runboard.RoleConfirmed, runboard.RoleConfirmed))
	assert.False(t, runboard.IsAtLeast(runboard.RoleRegistered, runboard.RoleConfirmed))
	assert.False(t, runboard.IsAtLeast(runboard.RoleBanned, runboard.RoleRegistered))
	assert.False(t, runboard.IsAtLeast("moderator", runboard.RoleRegistered))
}

func TestIsValidRole(t *testing.T) {
	for _, role := range runboard.AllRoles() {
		assert.True(t, runboard.IsValidRole(string(role)))
	}
	assert.False(t, runboard.IsValidRole("moderator"))
	assert.False(t, runboard.IsValidRole(""))
}
