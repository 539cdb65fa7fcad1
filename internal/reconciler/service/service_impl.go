package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/locks"
	"github.com/stackbill/stackbill/internal/orgcontext"
	providerdomain "github.com/stackbill/stackbill/internal/provider/domain"
	"github.com/stackbill/stackbill/internal/reconciler/domain"
	"github.com/stackbill/stackbill/pkg/db/pagination"
)

const deployLockTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Config config.Config
	Client providerdomain.Client
	Locker *locks.DeployLocker
	Models billingdomain.Repository
	Runs   domain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	client     providerdomain.Client
	locker     *locks.DeployLocker
	models     billingdomain.Repository
	runs       domain.Repository
	createdVia string
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reconciler.service"),
		genID:      p.GenID,
		client:     p.Client,
		locker:     p.Locker,
		models:     p.Models,
		runs:       p.Runs,
		createdVia: p.Config.Provider.CreatedVia,
	}
}

func (s *Service) PlanDeployment(ctx context.Context, modelID string) (*domain.RemoteOperationPlan, error) {
	model, err := s.loadModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if err := billingdomain.Validate(model.ModelType, model.Name, model.Items); err != nil {
		return nil, err
	}
	return buildPlan(*model, s.createdVia), nil
}

// Deploy plans and executes in one shot, holding a per-model lock so two
// concurrent deploys of the same model cannot both create products.
func (s *Service) Deploy(ctx context.Context, req domain.DeployRequest) (*domain.DeployResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	model, err := s.loadModel(ctx, req.BillingModelID)
	if err != nil {
		return nil, err
	}
	if err := billingdomain.Validate(model.ModelType, model.Name, model.Items); err != nil {
		return nil, err
	}

	lockKey := "deploy:model:" + model.ID.String()
	token, err := s.locker.TryLock(ctx, lockKey, deployLockTTL)
	if err != nil {
		if err == locks.ErrLockHeld {
			return nil, domain.ErrDeployInProgress
		}
		return nil, err
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("release deploy lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	plan := buildPlan(*model, s.createdVia)
	result := s.execute(ctx, plan)

	run := &domain.DeploymentRun{
		ID:              ulid.Make().String(),
		OrgID:           orgID,
		BillingModelID:  model.ID,
		Status:          runStatus(result),
		ProductsCreated: result.ProductsCreated,
		PricesCreated:   result.PricesCreated,
		MetersCreated:   result.MetersCreated,
		CreatedAt:       time.Now().UTC(),
	}
	if len(result.Errors) > 0 {
		if doc, err := json.Marshal(result.Errors); err == nil {
			run.Errors = datatypes.JSON(doc)
		}
	}
	if err := s.runs.CreateRun(ctx, s.db, run); err != nil {
		s.log.Error("persist deployment run", zap.Error(err))
	}

	s.log.Info("deployment executed",
		zap.String("billing_model_id", model.ID.String()),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("products_created", result.ProductsCreated),
		zap.Int("errors", len(result.Errors)),
	)

	return &domain.DeployResponse{RunID: run.ID, Plan: plan, Result: result}, nil
}

func (s *Service) ListRuns(ctx context.Context, req domain.ListRunsRequest) ([]domain.DeploymentRun, *pagination.PageInfo, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, nil, domain.ErrInvalidOrganization
	}
	return s.runs.ListRuns(ctx, s.db, orgID.Int64(), req)
}

func (s *Service) loadModel(ctx context.Context, modelID string) (*domain.Model, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	id, err := strconv.ParseInt(modelID, 10, 64)
	if err != nil {
		return nil, domain.ErrModelNotFound
	}

	record, err := s.models.FindByID(ctx, s.db, orgID.Int64(), id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrModelNotFound
	}

	var items []billingdomain.BillingItem
	if len(record.Items) > 0 {
		if err := json.Unmarshal(record.Items, &items); err != nil {
			return nil, err
		}
	}

	return &domain.Model{
		ID:        record.ID,
		Name:      record.Name,
		ModelType: record.ModelType,
		Items:     items,
	}, nil
}

func runStatus(result *domain.DeploymentResult) domain.RunStatus {
	switch {
	case len(result.Errors) == 0:
		return domain.RunStatusSucceeded
	case result.ProductsCreated == 0 && result.PricesCreated == 0 && result.MetersCreated == 0:
		return domain.RunStatusFailed
	default:
		return domain.RunStatusPartial
	}
}
