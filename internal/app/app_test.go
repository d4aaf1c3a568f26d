package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitework/internal/config"
	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/visibility"
)

func TestOpenUsesDefaultsWithoutConfigFile(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, t.TempDir(), Options{})
	require.NoError(t, err)
	defer rt.Close(ctx)

	assert.Equal(t, visibility.PolicyUnrestricted, rt.Config.Visibility.SalesManager)
	assert.NotNil(t, rt.Dispatcher())

	owner := domain.Actor{ID: "owner-1", Role: domain.RoleOwner}
	p, err := rt.Engine.CreateProject(ctx, engine.ProjectCreateOptions{
		Name: "Tower A", BuildingID: "b1", FloorUnitID: "f1", UnitID: "u1", Actor: owner,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}

func TestOpenReadsWorkspaceConfigAndOverrides(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	yml := "visibility:\n  sales_manager: two_hop\nnotifications:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitework.yml"), []byte(yml), 0o644))

	rt, err := Open(ctx, dir, Options{Override: func(c *config.Config) { c.Server.BasePath = "/api" }})
	require.NoError(t, err)
	defer rt.Close(ctx)

	assert.Equal(t, visibility.PolicyTwoHop, rt.Config.Visibility.SalesManager)
	assert.Equal(t, "/api", rt.Config.Server.BasePath)
	assert.Nil(t, rt.Dispatcher())
}

func TestOpenRejectsInvalidOverride(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), Options{Override: func(c *config.Config) {
		c.Tasks.Progress = "sideways"
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.tasks.progress")
}
