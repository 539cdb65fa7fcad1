package domain

import (
	"context"
	"errors"

	"github.com/stackbill/stackbill/pkg/db/pagination"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrModelNotFound       = errors.New("billing_model_not_found")
	ErrDeployInProgress    = errors.New("deploy_in_progress")
)

type DeployRequest struct {
	BillingModelID string `json:"billing_model_id"`
}

type DeployResponse struct {
	RunID  string               `json:"run_id"`
	Plan   *RemoteOperationPlan `json:"plan"`
	Result *DeploymentResult    `json:"result"`
}

type ListRunsRequest struct {
	pagination.Pagination
	BillingModelID string `form:"billing_model_id"`
}

// Service is the reconciler's public surface. PlanDeployment and
// PlanCleanup only compute; Deploy and ExecuteCleanup perform remote
// mutations.
type Service interface {
	PlanDeployment(ctx context.Context, modelID string) (*RemoteOperationPlan, error)
	Deploy(ctx context.Context, req DeployRequest) (*DeployResponse, error)
	ListRuns(ctx context.Context, req ListRunsRequest) ([]DeploymentRun, *pagination.PageInfo, error)

	PlanCleanup(ctx context.Context) ([]DeactivationAction, error)
	ExecuteCleanup(ctx context.Context, actions []DeactivationAction) (*CleanupResult, error)
}
