package entities_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/testsupport"
)

func TestCreate(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	funnel, err := entities.Create(db, entities.Funnel, nil, "  Webinar  ")
	require.NoError(t, err)
	assert.Equal(t, "Webinar", funnel.Name)
	assert.Nil(t, funnel.ParentID)

	testCases := []struct {
		name       string
		entityType entities.Type
		parentID   *uint
		entityName string
		wantErr    error
	}{
		{name: "funnel with a parent", entityType: entities.Funnel, parentID: &funnel.ID, entityName: "x", wantErr: entities.ErrInvalidParent},
		{name: "campaign without a parent", entityType: entities.Campaign, entityName: "x", wantErr: entities.ErrInvalidParent},
		{name: "ad set under a funnel", entityType: entities.AdSet, parentID: &funnel.ID, entityName: "x", wantErr: entities.ErrInvalidParent},
		{name: "blank name", entityType: entities.Campaign, parentID: &funnel.ID, entityName: " "},
		{name: "unknown type", entityType: entities.Type("page"), parentID: &funnel.ID, entityName: "x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := entities.Create(db, tc.entityType, tc.parentID, tc.entityName)
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestHierarchyReads(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	first := testsupport.CreateTree(t, db, "First")
	second := testsupport.CreateTree(t, db, "Second")

	extra, err := entities.Create(db, entities.Campaign, &first.Funnel.ID, "Retargeting")
	require.NoError(t, err)

	t.Run("funnels in creation order", func(t *testing.T) {
		funnels, err := entities.ListFunnels(db)
		require.NoError(t, err)
		require.Len(t, funnels, 2)
		assert.Equal(t, first.Funnel.ID, funnels[0].ID)
		assert.Equal(t, second.Funnel.ID, funnels[1].ID)
	})

	t.Run("children in creation order", func(t *testing.T) {
		dir := entities.NewDirectory(db)
		children, err := dir.ListChildren(context.Background(), first.Funnel.Ref())
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, first.Campaign.ID, children[0].ID)
		assert.Equal(t, extra.ID, children[1].ID)
	})

	t.Run("creatives have no children", func(t *testing.T) {
		children, err := entities.Children(db, first.Creative.Ref())
		require.NoError(t, err)
		assert.Empty(t, children)
	})

	t.Run("lookup checks the level", func(t *testing.T) {
		dir := entities.NewDirectory(db)
		e, err := dir.Entity(context.Background(), second.AdSet.Ref())
		require.NoError(t, err)
		assert.Equal(t, "Second ad set", e.Name)

		_, err = dir.Entity(context.Background(), entities.Ref{Type: entities.Campaign, ID: second.AdSet.ID})
		assert.ErrorIs(t, err, entities.ErrNotFound)
	})
}

func TestParseType(t *testing.T) {
	testCases := map[string]entities.Type{
		"funnel":    entities.Funnel,
		"campaigns": entities.Campaign,
		"ad-sets":   entities.AdSet,
		"ad_set":    entities.AdSet,
		"Creative":  entities.Creative,
	}
	for input, want := range testCases {
		got, err := entities.ParseType(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := entities.ParseType("landing_page")
	assert.Error(t, err)
}

func TestChildType(t *testing.T) {
	child, ok := entities.Funnel.ChildType()
	require.True(t, ok)
	assert.Equal(t, entities.Campaign, child)

	_, ok = entities.Creative.ChildType()
	assert.False(t, ok)
}

func TestParseRef(t *testing.T) {
	ref, err := entities.ParseRef("ad-set:12")
	require.NoError(t, err)
	assert.Equal(t, entities.Ref{Type: entities.AdSet, ID: 12}, ref)

	back, err := entities.ParseRef(ref.String())
	require.NoError(t, err)
	assert.Equal(t, ref, back)

	for _, bad := range []string{"funnel", "funnel:0", "funnel:x", "team:1"} {
		_, err := entities.ParseRef(bad)
		assert.Error(t, err, bad)
	}
}
