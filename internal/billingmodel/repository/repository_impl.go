package repository

import (
	"context"
	"strings"

	"github.com/stackbill/stackbill/internal/billingmodel/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, model *domain.BillingModel) error {
	return db.WithContext(ctx).Create(model).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id int64) (*domain.BillingModel, error) {
	var m domain.BillingModel
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID int64, filter domain.ListRequest) ([]domain.BillingModel, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.BillingModel{}).
		Where("org_id = ?", orgID)

	if filter.ModelType != "" {
		stmt = stmt.Where("model_type = ?", filter.ModelType)
	}

	stmt = stmt.Order(orderClause(filter.SortBy, filter.OrderBy))

	var items []domain.BillingModel
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, model *domain.BillingModel) error {
	if model == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE billing_models
		 SET name = ?, description = ?, model_type = ?, items = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		model.Name,
		model.Description,
		model.ModelType,
		model.Items,
		model.UpdatedAt,
		model.OrgID,
		model.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id int64) error {
	return db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(&domain.BillingModel{}).Error
}

var sortableColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
}

func orderClause(sortBy, orderBy string) string {
	column := strings.ToLower(strings.TrimSpace(sortBy))
	if !sortableColumns[column] {
		column = "created_at"
	}
	direction := "ASC"
	if strings.EqualFold(strings.TrimSpace(orderBy), "desc") {
		direction = "DESC"
	}
	return column + " " + direction
}
