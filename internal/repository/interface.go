package repository

import (
	"context"

	"gorm.io/gorm"
)

// BaseRepository is implemented by every repository.
type BaseRepository interface {
	// GetDB returns the underlying database handle.
	GetDB() *gorm.DB
}

// Pagination carries page parameters and the result total.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination normalizes page parameters.
func NewPagination(page, pageSize int) *Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return &Pagination{
		Page:     page,
		PageSize: pageSize,
	}
}

// Offset returns the row offset for the current page.
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate applies the pagination as a gorm scope.
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// BaseRepo is the shared repository implementation.
type BaseRepo struct {
	db *gorm.DB
}

// NewBaseRepo creates a base repository.
func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

// GetDB returns the database handle.
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// Transaction runs fn inside a database transaction.
func (r *BaseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
