package store

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// DecodePictures parses a node's pictures column. NULL and malformed
// payloads decode to an empty list.
func DecodePictures(raw datatypes.JSON) []models.Picture {
	var pictures []models.Picture
	if len(raw) == 0 || json.Unmarshal(raw, &pictures) != nil {
		return []models.Picture{}
	}
	return pictures
}

// DecodeLinks parses a node's links column the same way.
func DecodeLinks(raw datatypes.JSON) []models.Link {
	var links []models.Link
	if len(raw) == 0 || json.Unmarshal(raw, &links) != nil {
		return []models.Link{}
	}
	return links
}

// AddPicture appends a picture entry to the node's pictures array.
func (s *Store) AddPicture(ctx context.Context, nodeID uint, picture models.Picture) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := lockNodeMedia(tx, nodeID)
		if err != nil {
			return err
		}
		pictures := append(DecodePictures(node.Pictures), picture)
		return writeMedia(tx, nodeID, "pictures", pictures)
	})
}

// RemovePicture drops the picture with the given URL from the node's
// pictures array.
func (s *Store) RemovePicture(ctx context.Context, nodeID uint, url string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := lockNodeMedia(tx, nodeID)
		if err != nil {
			return err
		}
		pictures := DecodePictures(node.Pictures)
		kept := pictures[:0]
		for _, p := range pictures {
			if p.URL != url {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(pictures) {
			return fault.New(fault.NotFound, "picture not found on node %d", nodeID)
		}
		return writeMedia(tx, nodeID, "pictures", kept)
	})
}

// AddLink appends a link entry to the node's links array.
func (s *Store) AddLink(ctx context.Context, nodeID uint, link models.Link) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := lockNodeMedia(tx, nodeID)
		if err != nil {
			return err
		}
		links := append(DecodeLinks(node.Links), link)
		return writeMedia(tx, nodeID, "links", links)
	})
}

// RemoveLink drops the link with the given URL from the node's links
// array.
func (s *Store) RemoveLink(ctx context.Context, nodeID uint, url string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		node, err := lockNodeMedia(tx, nodeID)
		if err != nil {
			return err
		}
		links := DecodeLinks(node.Links)
		kept := links[:0]
		for _, l := range links {
			if l.URL != url {
				kept = append(kept, l)
			}
		}
		if len(kept) == len(links) {
			return fault.New(fault.NotFound, "link not found on node %d", nodeID)
		}
		return writeMedia(tx, nodeID, "links", kept)
	})
}

// AllPictureURLs collects every picture URL stored anywhere in the forest.
// The upload sweeper uses this to spot orphaned files.
func (s *Store) AllPictureURLs(ctx context.Context) ([]string, error) {
	var raws []datatypes.JSON
	err := s.db.WithContext(ctx).Model(&models.Node{}).
		Where("pictures IS NOT NULL").
		Pluck("pictures", &raws).Error
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, raw := range raws {
		for _, p := range DecodePictures(raw) {
			if p.URL != "" {
				urls = append(urls, p.URL)
			}
		}
	}
	return urls, nil
}

func lockNodeMedia(tx *gorm.DB, nodeID uint) (*models.Node, error) {
	var node models.Node
	err := tx.Select("id", "pictures", "links").First(&node, "id = ?", nodeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.New(fault.NotFound, "node %d not found", nodeID)
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func writeMedia(tx *gorm.DB, nodeID uint, column string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return tx.Model(&models.Node{}).Where("id = ?", nodeID).
		Update(column, datatypes.JSON(raw)).Error
}
