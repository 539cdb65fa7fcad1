package domain

import (
	"context"

	"gorm.io/gorm"

	"github.com/stackbill/stackbill/pkg/db/pagination"
)

type Repository interface {
	CreateRun(ctx context.Context, db *gorm.DB, run *DeploymentRun) error
	ListRuns(ctx context.Context, db *gorm.DB, orgID int64, filter ListRunsRequest) ([]DeploymentRun, *pagination.PageInfo, error)
}
