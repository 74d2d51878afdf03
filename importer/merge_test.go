package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/store"
)

func TestMergePreview(t *testing.T) {
	gdb := openTestDB(t)
	st := store.New(gdb)
	im := New(gdb, nil)
	ctx := context.Background()

	gp, err := st.CreateFamily(ctx, "GP", "Getriebepumpen", nil)
	require.NoError(t, err)
	pat, err := st.CreateNode(ctx, store.NodeInput{Level: 0, ParentID: &gp.ID, Pattern: intPtr(3)})
	require.NoError(t, err)
	a12, err := st.CreateNode(ctx, store.NodeInput{
		Code: strPtr("A12"), Name: "A12", Label: "Baugröße: A12 = Nenngröße 12",
		Level: 1, ParentID: &pat.ID, Position: 1,
	})
	require.NoError(t, err)
	_, err = st.CreateNode(ctx, store.NodeInput{
		Code: strPtr("K1"), Name: "K1", Label: "Kolben: K1 = Stahl",
		Level: 2, ParentID: &a12.ID, Position: 1,
	})
	require.NoError(t, err)

	path := writeFixture(t, "merge.json", `[
	  {"code": "GP", "name": "GP", "label": "Getriebepumpen", "children": [
	    {"pattern": 3, "children": [
	      {"code": "A12", "position": 1, "label": "Baugröße: A12 = Nenngröße 25"},
	      {"code": "A30", "position": 2, "label": "Baugröße: A30 = neu"}
	    ]}
	  ]},
	  {"code": "HP", "name": "HP", "label": "Hydraulikpumpen", "children": [
	    {"code": "B1", "label": "Welle: B1 = Standard"}
	  ]}
	]`)

	result, err := im.MergePreview(ctx, path)
	require.NoError(t, err)
	require.Len(t, result.Families, 2)

	gpDiff := result.Families[0]
	assert.Equal(t, "GP", gpDiff.FamilyCode)
	assert.False(t, gpDiff.New)
	assert.Equal(t, []string{"code:GP/pattern:3:0/code:A30"}, gpDiff.Added)
	assert.Equal(t, []string{"code:GP/pattern:3:0/code:A12/code:K1"}, gpDiff.Removed)
	require.Len(t, gpDiff.LabelDiffs, 1)
	assert.Equal(t, "code:GP/pattern:3:0/code:A12", gpDiff.LabelDiffs[0].Path)
	assert.Contains(t, gpDiff.LabelDiffs[0].Diff, "--- stored")
	assert.Contains(t, gpDiff.LabelDiffs[0].Diff, "-Baugröße: A12 = Nenngröße 12\n")
	assert.Contains(t, gpDiff.LabelDiffs[0].Diff, "+Baugröße: A12 = Nenngröße 25\n")

	hpDiff := result.Families[1]
	assert.Equal(t, "HP", hpDiff.FamilyCode)
	assert.True(t, hpDiff.New)
	assert.Equal(t, []string{"code:HP", "code:HP/code:B1"}, hpDiff.Added)
	assert.Empty(t, hpDiff.Removed)

	assert.Equal(t, 3, result.AddedCount)
	assert.Equal(t, 1, result.RemovedCount)
	assert.Equal(t, 1, result.ChangedCount)
}

func TestMergePreviewUnchanged(t *testing.T) {
	gdb := openTestDB(t)
	st := store.New(gdb)
	im := New(gdb, nil)
	ctx := context.Background()

	gp, err := st.CreateFamily(ctx, "GP", "Getriebepumpen", nil)
	require.NoError(t, err)
	_, err = st.CreateNode(ctx, store.NodeInput{
		Code: strPtr("B30"), Name: "B30", Label: "Sondergröße: B30 = Sonderbaureihe",
		Level: 1, ParentID: &gp.ID, Position: 3,
	})
	require.NoError(t, err)

	path := writeFixture(t, "merge.json", `[
	  {"code": "GP", "label": "Getriebepumpen", "children": [
	    {"code": "B30", "position": 3, "label": "Sondergröße: B30 = Sonderbaureihe"}
	  ]}
	]`)

	result, err := im.MergePreview(ctx, path)
	require.NoError(t, err)
	require.Len(t, result.Families, 1)
	assert.Empty(t, result.Families[0].Added)
	assert.Empty(t, result.Families[0].Removed)
	assert.Empty(t, result.Families[0].LabelDiffs)
	assert.Equal(t, 0, result.AddedCount+result.RemovedCount+result.ChangedCount)
}

func TestMergePreviewRequiresFamilyCode(t *testing.T) {
	im := New(openTestDB(t), nil)
	path := writeFixture(t, "merge.json", `[{"label": "kein Code"}]`)
	_, err := im.MergePreview(context.Background(), path)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Validation))
}
