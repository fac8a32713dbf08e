package store

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/chunkflow/internal/model"
	"github.com/kart-io/chunkflow/pkg/errors"
)

type tags struct {
	db *gorm.DB
}

func newTags(db *gorm.DB) *tags {
	return &tags{db}
}

// List returns tags ordered by name, optionally filtered by a
// case-insensitive substring.
func (s *tags) List(ctx context.Context, search string) ([]*model.Tag, error) {
	out := []*model.Tag{}
	q := s.db.WithContext(ctx).Order("name ASC")
	if search = strings.TrimSpace(search); search != "" {
		q = q.Where("name ILIKE ?", "%"+escapeLike(search)+"%")
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, translate(err, errors.ErrTagNotFound)
	}
	return out, nil
}

// Get returns a tag by id.
func (s *tags) Get(ctx context.Context, id int64) (*model.Tag, error) {
	var tag model.Tag
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&tag).Error; err != nil {
		return nil, translate(err, errors.ErrTagNotFound)
	}
	return &tag, nil
}

// GetByName returns a tag by its exact name.
func (s *tags) GetByName(ctx context.Context, name string) (*model.Tag, error) {
	var tag model.Tag
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&tag).Error; err != nil {
		return nil, translate(err, errors.ErrTagNotFound)
	}
	return &tag, nil
}

// Create registers a new tag. A duplicate name is ErrTagExists.
func (s *tags) Create(ctx context.Context, name string) (*model.Tag, error) {
	tag := &model.Tag{Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(tag).Error; err != nil {
		return nil, translate(err, errors.ErrTagNotFound)
	}
	return tag, nil
}

// CreateIfNotExists returns the existing tag or registers it.
func (s *tags) CreateIfNotExists(ctx context.Context, name string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&model.Tag{Name: name}).Error
	if err != nil {
		return nil, translate(err, errors.ErrTagNotFound)
	}
	return s.GetByName(ctx, name)
}

// Update renames a tag and rewrites the name in every chunk carrying it.
func (s *tags) Update(ctx context.Context, id int64, name string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old model.Tag
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&old).Error; err != nil {
			return err
		}
		if old.Name == name {
			return nil
		}
		if err := tx.Model(&old).Update("name", name).Error; err != nil {
			return err
		}
		return tx.Model(&model.Chunk{}).
			Where("tags @> ARRAY[?]::text[]", old.Name).
			Update("tags", gorm.Expr("array_replace(tags, ?::text, ?::text)", old.Name, name)).Error
	})
	if err != nil {
		return nil, translate(err, errors.ErrTagNotFound)
	}
	return s.Get(ctx, id)
}

// Delete removes a tag from the registry and from every chunk carrying it.
func (s *tags) Delete(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tag model.Tag
		if err := tx.Where("id = ?", id).First(&tag).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Chunk{}).
			Where("tags @> ARRAY[?]::text[]", tag.Name).
			Update("tags", gorm.Expr("array_remove(tags, ?::text)", tag.Name)).Error; err != nil {
			return err
		}
		return tx.Delete(&tag).Error
	})
	return translate(err, errors.ErrTagNotFound)
}

// Existing returns the subset of names present in the registry.
func (s *tags) Existing(ctx context.Context, names []string) ([]string, error) {
	names = NormalizeTags(names)
	out := []string{}
	if len(names) == 0 {
		return out, nil
	}
	err := s.db.WithContext(ctx).
		Model(&model.Tag{}).
		Where("name = ANY(?::text[])", pq.StringArray(names)).
		Pluck("name", &out).Error
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, translate(err, errors.ErrTagNotFound)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
