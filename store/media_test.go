package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

func TestAddRemovePicture(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	err := f.s.AddPicture(ctx, f.a12.ID, models.Picture{
		URL: "/uploads/a12_front.png", Description: strPtr("Frontansicht"), UploadedAt: "2026-08-25T10:00:00Z",
	})
	require.NoError(t, err)
	err = f.s.AddPicture(ctx, f.a12.ID, models.Picture{
		URL: "/uploads/a12_seite.png", UploadedAt: "2026-08-25T10:01:00Z",
	})
	require.NoError(t, err)

	node, err := f.s.NodeByID(ctx, f.a12.ID)
	require.NoError(t, err)
	pictures := DecodePictures(node.Pictures)
	require.Len(t, pictures, 2)
	assert.Equal(t, "/uploads/a12_front.png", pictures[0].URL)

	require.NoError(t, f.s.RemovePicture(ctx, f.a12.ID, "/uploads/a12_front.png"))
	node, err = f.s.NodeByID(ctx, f.a12.ID)
	require.NoError(t, err)
	pictures = DecodePictures(node.Pictures)
	require.Len(t, pictures, 1)
	assert.Equal(t, "/uploads/a12_seite.png", pictures[0].URL)

	err = f.s.RemovePicture(ctx, f.a12.ID, "/uploads/weg.png")
	assert.True(t, fault.IsKind(err, fault.NotFound))

	err = f.s.AddPicture(ctx, 99999, models.Picture{URL: "/uploads/x.png"})
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestAddRemoveLink(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	err := f.s.AddLink(ctx, f.k2.ID, models.Link{
		URL: "https://example.com/datenblatt.pdf", Title: "Datenblatt", AddedAt: "2026-08-25T10:00:00Z",
	})
	require.NoError(t, err)

	node, err := f.s.NodeByID(ctx, f.k2.ID)
	require.NoError(t, err)
	links := DecodeLinks(node.Links)
	require.Len(t, links, 1)
	assert.Equal(t, "Datenblatt", links[0].Title)

	require.NoError(t, f.s.RemoveLink(ctx, f.k2.ID, "https://example.com/datenblatt.pdf"))
	node, err = f.s.NodeByID(ctx, f.k2.ID)
	require.NoError(t, err)
	assert.Empty(t, DecodeLinks(node.Links))

	err = f.s.RemoveLink(ctx, f.k2.ID, "https://example.com/datenblatt.pdf")
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestDecodeMediaMalformed(t *testing.T) {
	assert.Empty(t, DecodePictures(nil))
	assert.Empty(t, DecodePictures(datatypes.JSON(`kein json`)))
	assert.Empty(t, DecodeLinks(nil))
	assert.Empty(t, DecodeLinks(datatypes.JSON(`{"url": 1`)))
}

func TestAllPictureURLs(t *testing.T) {
	f := seedForest(t)
	ctx := context.Background()

	urls, err := f.s.AllPictureURLs(ctx)
	require.NoError(t, err)
	assert.Empty(t, urls)

	require.NoError(t, f.s.AddPicture(ctx, f.a12.ID, models.Picture{URL: "/uploads/a.png"}))
	require.NoError(t, f.s.AddPicture(ctx, f.a12.ID, models.Picture{URL: "/uploads/b.png"}))
	require.NoError(t, f.s.AddPicture(ctx, f.x1.ID, models.Picture{URL: "/uploads/c.png"}))

	urls, err = f.s.AllPictureURLs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/uploads/a.png", "/uploads/b.png", "/uploads/c.png"}, urls)
}
