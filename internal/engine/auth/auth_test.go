package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"sitework/internal/domain"
)

func TestRequire(t *testing.T) {
	assert.ErrorIs(t, Require(domain.Actor{Role: domain.RoleAdmin}, CreateProject), ErrUnauthenticated)
	assert.NoError(t, Require(domain.Actor{ID: "o", Role: domain.RoleOwner}, CreateProject))

	err := Require(domain.Actor{ID: "c1", Role: domain.RoleContractor}, UpdateReview)
	var fe ForbiddenError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.RoleContractor, fe.Role)
	assert.Equal(t, UpdateReview, fe.Action)
}

func TestTrackOwnership(t *testing.T) {
	assert.True(t, Allowed(domain.RoleContractor, UpdateWork))
	assert.False(t, Allowed(domain.RoleSiteIncharge, UpdateWork))
	assert.True(t, Allowed(domain.RoleSiteIncharge, UpdateReview))
	assert.False(t, Allowed(domain.RoleAdmin, UpdateReview))
}

func TestOpenAndUnknownActions(t *testing.T) {
	assert.True(t, Allowed(domain.Role("visitor"), ListTasks))
	assert.False(t, Allowed(domain.RoleAdmin, Action("reactor.melt")))
	assert.False(t, Allowed(domain.RoleSalesManager, ListProjects))
}

func TestKnownRole(t *testing.T) {
	assert.True(t, KnownRole(domain.RoleCustomerPurchased))
	assert.False(t, KnownRole("visitor"))
}

func TestContractorReviewRoles(t *testing.T) {
	assert.True(t, Allowed(domain.RoleSiteIncharge, ReviewContractors))
	assert.True(t, Allowed(domain.RoleAccountant, ReviewContractors))
	assert.False(t, Allowed(domain.RoleContractor, ReviewContractors))
}
