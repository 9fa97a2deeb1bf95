// Package repository implements the durable Job Store and the parallel
// indexed spaces for VoiceProfile and QualityProfile records on top of
// gorm. Updates are atomic per record via gorm's single-statement
// Save/Update calls; no caller ever observes a torn record.
package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository is the generic CRUD contract shared by every entity store,
// generalized from the teacher's repository shape to a string id (every
// entity in this system uses a uuid primary key).
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	FindByID(ctx context.Context, id string) (*T, error)
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, offset, limit int) ([]T, int64, error)
}

// BaseRepository implements Repository[T] against a *gorm.DB.
type BaseRepository[T any] struct {
	db *gorm.DB
}

// NewBaseRepository builds a BaseRepository bound to db.
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{db: db}
}

func (r *BaseRepository[T]) Create(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

func (r *BaseRepository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	var entity T
	if err := r.db.WithContext(ctx).First(&entity, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *BaseRepository[T]) Update(ctx context.Context, entity *T) error {
	return r.db.WithContext(ctx).Save(entity).Error
}

func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	var entity T
	return r.db.WithContext(ctx).Delete(&entity, "id = ?", id).Error
}

func (r *BaseRepository[T]) List(ctx context.Context, offset, limit int) ([]T, int64, error) {
	var entities []T
	var count int64

	q := r.db.WithContext(ctx).Model(new(T))
	if err := q.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Offset(offset).Limit(limit).Find(&entities).Error; err != nil {
		return nil, 0, err
	}
	return entities, count, nil
}

// DB exposes the underlying handle for specialized repositories that
// need queries the generic interface doesn't cover.
func (r *BaseRepository[T]) DB() *gorm.DB { return r.db }
