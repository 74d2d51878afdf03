package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// seedSuccessor links two nodes directly, bypassing the bulk validation.
func seedSuccessor(t *testing.T, s *Store, sourceID, targetID uint) {
	t.Helper()
	err := s.db.Create(&models.ProductSuccessor{
		SourceNodeID:    sourceID,
		TargetNodeID:    &targetID,
		SourceType:      "node",
		ReplacementType: "successor",
		MigrationNote:   "Testmigration",
		CreatedBy:       "tester",
	}).Error
	require.NoError(t, err)
}

func TestCreateNode(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	node, err := f.s.CreateNode(ctx, NodeInput{
		Code: strPtr("Z7"), Name: "Z7",
		Label: "Dichtung: Z7 = NBR",
		Level: 3, ParentID: &f.k2.ID, Position: 2,
		GroupName: strPtr("Werkstoff"),
	})
	require.NoError(t, err)
	require.NotZero(t, node.ID)
	require.NotNil(t, node.Position)
	assert.Equal(t, 2, *node.Position)

	// Closure rows reach the new node from every ancestor.
	hit, err := f.s.BatchPathExists(ctx, []uint{f.gp.ID}, []uint{node.ID})
	require.NoError(t, err)
	assert.True(t, hit)
	hit, err = f.s.BatchPathExists(ctx, []uint{f.a25.ID}, []uint{node.ID})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCreateFamily(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	family, err := f.s.CreateFamily(ctx, "  ZP ", "Zahnradpumpen", strPtr(" Gear units "))
	require.NoError(t, err)
	assert.Equal(t, "ZP", family.CodeString())
	assert.Equal(t, "ZP", family.Name)
	assert.Equal(t, 0, family.Level)
	require.NotNil(t, family.Position)
	assert.Equal(t, 2, *family.Position)
	require.NotNil(t, family.LabelEN)
	assert.Equal(t, "Gear units", *family.LabelEN)

	_, err = f.s.CreateFamily(ctx, "GP", "Nochmal", nil)
	assert.True(t, fault.IsKind(err, fault.Conflict))

	_, err = f.s.CreateFamily(ctx, "   ", "Leer", nil)
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestUpdateFamilyLabels(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	family, err := f.s.UpdateFamilyLabels(ctx, "gp", "Zahnradpumpen", strPtr("Gear pumps v2"))
	require.NoError(t, err)
	assert.Equal(t, "Zahnradpumpen", family.Label)
	assert.Equal(t, "Zahnradpumpen", family.Name)
	require.NotNil(t, family.LabelEN)
	assert.Equal(t, "Gear pumps v2", *family.LabelEN)

	persisted, err := f.s.NodeByID(ctx, f.gp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zahnradpumpen", persisted.Label)

	_, err = f.s.UpdateFamilyLabels(ctx, "ZZ", "Nix", nil)
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestDeleteFamily(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	seedSuccessor(t, f.s, f.z9.ID, f.x1.ID)

	result, err := f.s.DeleteFamily(ctx, "hp")
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.DeletedNodes)
	assert.Equal(t, int64(1), result.DeletedSuccessors)

	_, err = f.s.FamilyByCode(ctx, "HP")
	assert.True(t, fault.IsKind(err, fault.NotFound))

	// The other family is untouched.
	_, err = f.s.NodeByID(ctx, f.a12.ID)
	require.NoError(t, err)

	_, err = f.s.DeleteFamily(ctx, "HP")
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestDeleteNodeCascade(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	seedSuccessor(t, f.s, f.z9.ID, f.x1.ID)

	// Every K1 in the forest falls, each with its subtree.
	result, err := f.s.DeleteNodeCascade(ctx, f.k1A12.ID)
	require.NoError(t, err)
	assert.Equal(t, "K1", result.Code)
	assert.Equal(t, 2, result.Level)
	assert.Equal(t, 2, result.NodesWithSameCode)
	assert.Equal(t, int64(3), result.DeletedNodes)
	assert.Equal(t, int64(1), result.DeletedSuccessors)

	_, err = f.s.NodeByCode(ctx, "K1")
	assert.True(t, fault.IsKind(err, fault.NotFound))
	_, err = f.s.NodeByCode(ctx, "Z9")
	assert.True(t, fault.IsKind(err, fault.NotFound))

	// Siblings on the same level survive.
	_, err = f.s.NodeByID(ctx, f.k2.ID)
	require.NoError(t, err)
	_, err = f.s.NodeByID(ctx, f.l5.ID)
	require.NoError(t, err)
}

func TestDeleteNodeCascadeRefusesFamilies(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	_, err := f.s.DeleteNodeCascade(ctx, f.gp.ID)
	assert.True(t, fault.IsKind(err, fault.Integrity))

	_, err = f.s.DeleteNodeCascade(ctx, 99999)
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestPreviewNodeDeletion(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	seedSuccessor(t, f.s, f.z9.ID, f.x1.ID)

	preview, err := f.s.PreviewNodeDeletion(ctx, f.k1A12.ID)
	require.NoError(t, err)
	assert.Equal(t, "K1", preview.Code)
	assert.Equal(t, 2, preview.NodesWithSameCode)
	assert.Equal(t, int64(3), preview.AffectedNodes)
	assert.Equal(t, int64(1), preview.AffectedSuccessors)
	assert.True(t, preview.CanDelete)
	require.Len(t, preview.Warnings, 3)
	assert.Equal(t, "2 Nodes mit Code 'K1' auf Level 2 werden gelöscht", preview.Warnings[0])
	assert.Equal(t, "3 Nodes gesamt (inkl. alle Descendants)", preview.Warnings[1])
	assert.Equal(t, "1 Nachfolger-Beziehungen werden gelöscht", preview.Warnings[2])

	// A preview never deletes.
	_, err = f.s.NodeByID(ctx, f.k1A12.ID)
	require.NoError(t, err)

	_, err = f.s.PreviewNodeDeletion(ctx, f.gp.ID)
	assert.True(t, fault.IsKind(err, fault.Integrity))
}

func TestPreviewFamilyDeletion(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	preview, err := f.s.PreviewFamilyDeletion(ctx, "hp")
	require.NoError(t, err)
	assert.Equal(t, "HP", preview.Code)
	assert.Equal(t, "Hydraulikpumpen", preview.Label)
	assert.Equal(t, int64(3), preview.AffectedNodes)
	assert.True(t, preview.CanDelete)
	require.Len(t, preview.Warnings, 1)
	assert.Equal(t, "3 Nodes werden gelöscht", preview.Warnings[0])

	_, err = f.s.PreviewFamilyDeletion(ctx, "ZZ")
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestUpdateNode(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	err := f.s.UpdateNode(ctx, f.a12.ID, UpdateNodeFields{
		Label: strPtr("Baugröße: A12 = Nenngröße 12 (neu)"),
		Name:  strPtr("A12 neu"),
	})
	require.NoError(t, err)
	node, err := f.s.NodeByID(ctx, f.a12.ID)
	require.NoError(t, err)
	assert.Equal(t, "Baugröße: A12 = Nenngröße 12 (neu)", node.Label)
	assert.Equal(t, "A12 neu", node.Name)

	// Sending the unchanged code is fine, changing it is not.
	err = f.s.UpdateNode(ctx, f.a12.ID, UpdateNodeFields{Code: strPtr("A12"), Label: strPtr("x")})
	require.NoError(t, err)
	err = f.s.UpdateNode(ctx, f.a12.ID, UpdateNodeFields{Code: strPtr("A13")})
	assert.True(t, fault.IsKind(err, fault.Integrity))

	err = f.s.UpdateNode(ctx, 99999, UpdateNodeFields{Label: strPtr("x")})
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestUpdateNodeGroupPropagates(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	err := f.s.UpdateNode(ctx, f.a12.ID, UpdateNodeFields{GroupName: strPtr("Antrieb")})
	require.NoError(t, err)

	for _, id := range []uint{f.a12.ID, f.k1A12.ID, f.z9.ID, f.k2.ID, f.l5.ID} {
		node, err := f.s.NodeByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, node.GroupName)
		assert.Equal(t, "Antrieb", *node.GroupName, "node %d", id)
	}

	// Nodes outside the subtree keep their group.
	node, err := f.s.NodeByID(ctx, f.k1A25.ID)
	require.NoError(t, err)
	require.NotNil(t, node.GroupName)
	assert.Equal(t, "Werkstoff", *node.GroupName)
}

func TestBulkUpdateNodes(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	updated, err := f.s.BulkUpdateNodes(ctx, []uint{f.k1A12.ID, f.k2.ID}, BulkUpdateFields{
		GroupName: strPtr("Material"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	node, err := f.s.NodeByID(ctx, f.k1A12.ID)
	require.NoError(t, err)
	assert.Equal(t, "Material", *node.GroupName)
	node, err = f.s.NodeByID(ctx, f.k1A25.ID)
	require.NoError(t, err)
	assert.Equal(t, "Werkstoff", *node.GroupName)

	_, err = f.s.BulkUpdateNodes(ctx, nil, BulkUpdateFields{GroupName: strPtr("x")})
	assert.True(t, fault.IsKind(err, fault.Validation))

	_, err = f.s.BulkUpdateNodes(ctx, []uint{f.k2.ID}, BulkUpdateFields{})
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestBulkUpdateNodesAppend(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	updated, err := f.s.BulkUpdateNodes(ctx, []uint{f.a12.ID}, BulkUpdateFields{
		AppendName:  "v2",
		AppendLabel: "Hinweis: überarbeitet",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	node, err := f.s.NodeByID(ctx, f.a12.ID)
	require.NoError(t, err)
	assert.Equal(t, "A12 v2", node.Name)
	assert.Equal(t, "Baugröße: A12 = Nenngröße 12\n\nHinweis: überarbeitet", node.Label)

	// Appending to an empty group just sets it.
	updated, err = f.s.BulkUpdateNodes(ctx, []uint{f.x1.ID}, BulkUpdateFields{
		AppendGroupName: "Welle",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
	node, err = f.s.NodeByID(ctx, f.x1.ID)
	require.NoError(t, err)
	require.NotNil(t, node.GroupName)
	assert.Equal(t, "Welle", *node.GroupName)

	// Unknown ids are skipped, not an error.
	updated, err = f.s.BulkUpdateNodes(ctx, []uint{99999, f.k2.ID}, BulkUpdateFields{
		AppendName: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
}
