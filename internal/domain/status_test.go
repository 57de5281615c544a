package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/domain"
)

func TestStatusCanBeChangedToThisStatus(t *testing.T) {
	all := []domain.Status{
		domain.StatusPendingConfirmation,
		domain.StatusConfirmed,
		domain.StatusDeactivated,
		domain.StatusDeleted,
	}
	legal := map[[2]domain.Status]bool{
		{domain.StatusPendingConfirmation, domain.StatusConfirmed}: true,
		{domain.StatusConfirmed, domain.StatusDeactivated}:         true,
		{domain.StatusDeactivated, domain.StatusConfirmed}:         true,
		{domain.StatusPendingConfirmation, domain.StatusDeleted}:   true,
		{domain.StatusConfirmed, domain.StatusDeleted}:             true,
		{domain.StatusDeactivated, domain.StatusDeleted}:           true,
	}

	for _, from := range all {
		for _, to := range all {
			ok, err := from.CanBeChangedToThisStatus(to)
			if from == to {
				var already *domain.AlreadyInStateError
				require.ErrorAs(t, err, &already, "%s -> %s", from, to)
				assert.False(t, ok)
				continue
			}
			require.NoError(t, err)
			assert.Equal(t, legal[[2]domain.Status{from, to}], ok, "%s -> %s", from, to)
		}
	}
}

func TestStatusCanAuthorize(t *testing.T) {
	assert.True(t, domain.StatusConfirmed.CanAuthorize())
	assert.False(t, domain.StatusPendingConfirmation.CanAuthorize())
	assert.False(t, domain.StatusDeactivated.CanAuthorize())
	assert.False(t, domain.StatusDeleted.CanAuthorize())
}

func TestParseStatusAndRole(t *testing.T) {
	status, err := domain.ParseStatus(2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, status)
	_, err = domain.ParseStatus(0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	role, err := domain.ParseRole(5)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHR, role)
	_, err = domain.ParseRole(6)
	assert.ErrorIs(t, err, domain.ErrValidation)

	role, err = domain.ParseRoleName("support")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSupport, role)
}

func TestRoleCanBeChangedTo(t *testing.T) {
	assert.False(t, domain.RoleCustomer.CanBeChangedTo(domain.RoleAdmin))
	assert.False(t, domain.RoleAdmin.CanBeChangedTo(domain.RoleCustomer))
	assert.True(t, domain.RoleAdmin.CanBeChangedTo(domain.RoleMaintenance))
	assert.True(t, domain.RoleHR.CanBeChangedTo(domain.RoleSupport))
}
