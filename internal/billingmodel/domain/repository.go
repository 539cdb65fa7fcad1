package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, model *BillingModel) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id int64) (*BillingModel, error)
	List(ctx context.Context, db *gorm.DB, orgID int64, filter ListRequest) ([]BillingModel, error)
	Update(ctx context.Context, db *gorm.DB, model *BillingModel) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id int64) error
}
