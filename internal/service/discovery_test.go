package service

import (
	"testing"

	"GSCSync/internal/interfaces"
	"GSCSync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDiscoveryDiff(t *testing.T) {
	existing := []*model.Site{
		{ID: 1, URL: "sc-domain:kept.example.com", IsActive: true},
		{ID: 2, URL: "sc-domain:gone.example.com", IsActive: true},
		{ID: 3, URL: "sc-domain:already-off.example.com", IsActive: false},
	}
	props := []interfaces.Property{
		{SiteURL: "sc-domain:kept.example.com", PermissionLevel: "siteOwner"},
		{SiteURL: "https://new.example.com/", PermissionLevel: "siteFullUser"},
	}

	diff := BuildDiscoveryDiff(existing, props)

	require.Len(t, diff.Added, 1)
	assert.Equal(t, "https://new.example.com/", diff.Added[0].SiteURL)

	require.Len(t, diff.Unchanged, 1)
	assert.Equal(t, "sc-domain:kept.example.com", diff.Unchanged[0].SiteURL)

	// 只有激活且消失的站点进入Removed；已停用的不重复停用
	require.Len(t, diff.Removed, 1)
	assert.EqualValues(t, 2, diff.Removed[0].ID)
}

func TestBuildDiscoveryDiff_DuplicateProperties(t *testing.T) {
	props := []interfaces.Property{
		{SiteURL: "sc-domain:a.example.com", PermissionLevel: "siteOwner"},
		{SiteURL: "sc-domain:a.example.com", PermissionLevel: "siteOwner"},
	}

	diff := BuildDiscoveryDiff(nil, props)
	assert.Len(t, diff.Added, 1)
	assert.Empty(t, diff.Unchanged)
	assert.Empty(t, diff.Removed)
}

func TestBuildDiscoveryDiff_EmptyPropertyList(t *testing.T) {
	existing := []*model.Site{
		{ID: 1, URL: "sc-domain:a.example.com", IsActive: true},
	}

	diff := BuildDiscoveryDiff(existing, nil)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Unchanged)
	require.Len(t, diff.Removed, 1)
}
