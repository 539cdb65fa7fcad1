package repository

import (
	"context"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/stackbill/stackbill/internal/reconciler/domain"
	"github.com/stackbill/stackbill/pkg/db/pagination"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateRun(ctx context.Context, db *gorm.DB, run *domain.DeploymentRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) ListRuns(ctx context.Context, db *gorm.DB, orgID int64, filter domain.ListRunsRequest) ([]domain.DeploymentRun, *pagination.PageInfo, error) {
	limit := filter.PageSize
	if limit <= 0 {
		limit = 20
	}

	stmt := db.WithContext(ctx).
		Model(&domain.DeploymentRun{}).
		Where("org_id = ?", orgID)

	if filter.BillingModelID != "" {
		modelID, err := strconv.ParseInt(filter.BillingModelID, 10, 64)
		if err != nil {
			return nil, nil, gorm.ErrInvalidData
		}
		stmt = stmt.Where("billing_model_id = ?", modelID)
	}

	if filter.PageToken != "" {
		cursor, err := pagination.DecodeCursor(filter.PageToken)
		if err != nil {
			return nil, nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		stmt = stmt.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			createdAt, createdAt, cursor.ID,
		)
	}

	var runs []domain.DeploymentRun
	err := stmt.
		Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&runs).Error
	if err != nil {
		return nil, nil, err
	}

	runs, info := pagination.BuildPageInfo(runs, limit, func(run domain.DeploymentRun) pagination.Cursor {
		return pagination.Cursor{
			ID:        run.ID,
			CreatedAt: run.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	return runs, info, nil
}
