package repository

import (
	"context"
	"errors"

	"github.com/resumekit/resumekit/internal/domain"
	"github.com/resumekit/resumekit/internal/observability"

	"gorm.io/gorm"
)

var ErrResumeNotFound = errors.New("resume not found")

// ResumeRepository scopes every lookup and mutation by owner so one account
// can never touch another account's documents.
type ResumeRepository interface {
	Create(resume *domain.Resume) error
	FindByID(accountID, resumeID uint) (*domain.Resume, error)
	ListByAccountPaged(accountID uint, req PageRequest) (PageResult[domain.Resume], error)
	Update(accountID, resumeID uint, updates map[string]any) error
	DeleteByID(accountID, resumeID uint) error
}

type GormResumeRepository struct{ db *gorm.DB }

func NewResumeRepository(db *gorm.DB) ResumeRepository {
	return &GormResumeRepository{db: db}
}

func (r *GormResumeRepository) Create(resume *domain.Resume) error {
	if err := r.db.Create(resume).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "resume", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "resume", "create", "success")
	return nil
}

func (r *GormResumeRepository) FindByID(accountID, resumeID uint) (*domain.Resume, error) {
	var resume domain.Resume
	if err := r.db.Where("id = ? AND account_id = ?", resumeID, accountID).First(&resume).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "resume", "find_by_id", "not_found")
			return nil, ErrResumeNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "resume", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "resume", "find_by_id", "success")
	return &resume, nil
}

func (r *GormResumeRepository) ListByAccountPaged(accountID uint, req PageRequest) (PageResult[domain.Resume], error) {
	normalized := req.normalized()
	result := PageResult[domain.Resume]{
		Page:     normalized.Page,
		PageSize: normalized.PageSize,
	}

	base := r.db.Model(&domain.Resume{}).Where("account_id = ?", accountID)
	if err := base.Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "resume", "list_paged", "error")
		return PageResult[domain.Resume]{}, err
	}
	if err := base.Order("updated_at desc, id desc").Offset(normalized.offset()).Limit(normalized.PageSize).Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "resume", "list_paged", "error")
		return PageResult[domain.Resume]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, normalized.PageSize)
	observability.RecordRepositoryOperation(context.Background(), "resume", "list_paged", "success")
	return result, nil
}

func (r *GormResumeRepository) Update(accountID, resumeID uint, updates map[string]any) error {
	res := r.db.Model(&domain.Resume{}).Where("id = ? AND account_id = ?", resumeID, accountID).Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "resume", "update", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "resume", "update", "not_found")
		return ErrResumeNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "resume", "update", "success")
	return nil
}

func (r *GormResumeRepository) DeleteByID(accountID, resumeID uint) error {
	res := r.db.Where("id = ? AND account_id = ?", resumeID, accountID).Delete(&domain.Resume{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "resume", "delete_by_id", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "resume", "delete_by_id", "not_found")
		return ErrResumeNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "resume", "delete_by_id", "success")
	return nil
}
