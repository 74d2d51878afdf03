package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/varix/fault"
)

func TestUpsertKmatReference(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()
	path := []uint{f.a12.ID, f.k1A12.ID, f.z9.ID}

	kmat, updated, err := f.s.UpsertKmatReference(ctx, f.gp.ID, path, "GP A12-K1-Z9", "KMAT-100", "anna")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, "KMAT-100", kmat.Reference)
	assert.Equal(t, "GP A12-K1-Z9", kmat.FullTypecode)
	assert.Equal(t, "anna", kmat.CreatedBy)

	// The same path overwrites in place.
	again, updated, err := f.s.UpsertKmatReference(ctx, f.gp.ID, path, "GP A12-K1-Z9", "KMAT-200", "ben")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, kmat.ID, again.ID)
	assert.Equal(t, "KMAT-200", again.Reference)

	// The same ids in another order are a different path.
	reversed := []uint{f.z9.ID, f.k1A12.ID, f.a12.ID}
	other, updated, err := f.s.UpsertKmatReference(ctx, f.gp.ID, reversed, "GP A12-K1-Z9", "KMAT-300", "anna")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NotEqual(t, kmat.ID, other.ID)
}

func TestKmatReferenceForPath(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()
	path := []uint{f.a12.ID, f.k1A12.ID, f.z9.ID}

	kmat, err := f.s.KmatReferenceForPath(ctx, f.gp.ID, path)
	require.NoError(t, err)
	assert.Nil(t, kmat)

	_, _, err = f.s.UpsertKmatReference(ctx, f.gp.ID, path, "GP A12-K1-Z9", "KMAT-100", "anna")
	require.NoError(t, err)

	kmat, err = f.s.KmatReferenceForPath(ctx, f.gp.ID, path)
	require.NoError(t, err)
	require.NotNil(t, kmat)
	assert.Equal(t, "KMAT-100", kmat.Reference)

	// The family scopes the lookup.
	kmat, err = f.s.KmatReferenceForPath(ctx, f.hp.ID, path)
	require.NoError(t, err)
	assert.Nil(t, kmat)
}

func TestKmatReferencesByFamily(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	_, _, err := f.s.UpsertKmatReference(ctx, f.gp.ID, []uint{f.a12.ID, f.k1A12.ID, f.z9.ID}, "GP A12-K1-Z9", "KMAT-100", "anna")
	require.NoError(t, err)
	_, _, err = f.s.UpsertKmatReference(ctx, f.gp.ID, []uint{f.a25.ID, f.k1A25.ID}, "GPA25K1", "KMAT-101", "anna")
	require.NoError(t, err)
	_, _, err = f.s.UpsertKmatReference(ctx, f.hp.ID, []uint{f.a12HP.ID, f.x1.ID}, "HP A12-X1", "KMAT-900", "anna")
	require.NoError(t, err)

	refs, err := f.s.KmatReferencesByFamily(ctx, f.gp.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "KMAT-100", refs[0].Reference)
	assert.Equal(t, "KMAT-101", refs[1].Reference)

	refs, err = f.s.KmatReferencesByFamily(ctx, f.hp.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
}

func TestDeleteKmatReference(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	kmat, _, err := f.s.UpsertKmatReference(ctx, f.gp.ID, []uint{f.b30.ID}, "GPB30", "KMAT-500", "anna")
	require.NoError(t, err)

	require.NoError(t, f.s.DeleteKmatReference(ctx, kmat.ID))
	err = f.s.DeleteKmatReference(ctx, kmat.ID)
	assert.True(t, fault.IsKind(err, fault.NotFound))
}
