package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/pkg/errors"
)

type documents struct {
	db *gorm.DB
}

func newDocuments(db *gorm.DB) *documents {
	return &documents{db}
}

// Create inserts a document.
func (s *documents) Create(ctx context.Context, doc *model.Document) error {
	if doc.Status == "" {
		doc.Status = model.DocumentStatusPending
	}
	return translate(s.db.WithContext(ctx).Create(doc).Error, errors.ErrDocumentNotFound)
}

// Get returns a document by id.
func (s *documents) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, translate(err, errors.ErrDocumentNotFound)
	}
	return &doc, nil
}

// ListByUser returns a user's documents, newest first.
func (s *documents) ListByUser(ctx context.Context, userID string) ([]*model.Document, error) {
	out := []*model.Document{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err, errors.ErrDocumentNotFound)
	}
	return out, nil
}

// Delete removes a document. Its chunks and their components go with it
// through the cascading foreign keys; the counts are taken under the same
// transaction.
func (s *documents) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	res := &DeleteResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&doc).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.ChunkComponent{}).
			Joins("JOIN chunks ON chunks.id = chunk_components.chunk_id").
			Where("chunks.document_id = ?", id).
			Count(&res.Components).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Chunk{}).Where("document_id = ?", id).Count(&res.Chunks).Error; err != nil {
			return err
		}
		return tx.Delete(&doc).Error
	})
	if err != nil {
		return nil, translate(err, errors.ErrDocumentNotFound)
	}
	return res, nil
}

// UpdateStatus moves a document to status, recording errMsg for failures.
// Disallowed transitions are ErrInvalidStatus and leave the row unchanged.
func (s *documents) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&doc).Error; err != nil {
			return err
		}
		if err := doc.Transition(status, errMsg); err != nil {
			return err
		}
		return tx.Model(&doc).Updates(map[string]interface{}{
			"status":        doc.Status,
			"error_message": doc.ErrorMessage,
		}).Error
	})
	if err != nil {
		return nil, translate(err, errors.ErrDocumentNotFound)
	}
	return &doc, nil
}
