package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stackbill/stackbill/internal/billingmodel/domain"
	"github.com/stackbill/stackbill/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billingmodel.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	items := ensureItemIDs(s.genID, req.Items)
	if err := domain.Validate(req.ModelType, req.Name, items); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(ptrToString(req.Description))
	var descriptionPtr *string
	if description != "" {
		descriptionPtr = &description
	}

	now := time.Now().UTC()
	m := &domain.BillingModel{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Name:        strings.TrimSpace(req.Name),
		Description: descriptionPtr,
		ModelType:   req.ModelType,
		Items:       datatypes.JSON(doc),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, s.db, m); err != nil {
		return nil, err
	}

	s.log.Info("billing model created",
		zap.String("model_id", m.ID.String()),
		zap.String("model_type", string(m.ModelType)),
		zap.Int("items", len(items)),
	)

	return s.toResponse(m)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	models, err := s.repo.List(ctx, s.db, orgID.Int64(), domain.ListRequest{
		ModelType: strings.TrimSpace(req.ModelType),
		SortBy:    strings.TrimSpace(req.SortBy),
		OrderBy:   strings.TrimSpace(req.OrderBy),
	})
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(models))
	for i := range models {
		r, err := s.toResponse(&models[i])
		if err != nil {
			return nil, err
		}
		resp = append(resp, *r)
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	m, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(m)
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	m, err := s.find(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		m.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			m.Description = nil
		} else {
			m.Description = &description
		}
	}
	if req.ModelType != nil {
		m.ModelType = *req.ModelType
	}

	items, err := decodeItems(m.Items)
	if err != nil {
		return nil, err
	}
	if req.Items != nil {
		items = ensureItemIDs(s.genID, req.Items)
	}

	if err := domain.Validate(m.ModelType, m.Name, items); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	m.Items = datatypes.JSON(doc)
	m.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, m); err != nil {
		return nil, err
	}
	return s.toResponse(m)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	m, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, s.db, m.OrgID.Int64(), m.ID.Int64())
}

func (s *Service) find(ctx context.Context, id string) (*domain.BillingModel, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	modelID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	m, err := s.repo.FindByID(ctx, s.db, orgID.Int64(), modelID.Int64())
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (s *Service) toResponse(m *domain.BillingModel) (*domain.Response, error) {
	items, err := decodeItems(m.Items)
	if err != nil {
		return nil, err
	}
	return &domain.Response{
		ID:             m.ID.String(),
		OrganizationID: m.OrgID.String(),
		Name:           m.Name,
		Description:    m.Description,
		ModelType:      m.ModelType,
		Items:          items,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func decodeItems(doc datatypes.JSON) ([]domain.BillingItem, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	var items []domain.BillingItem
	if err := json.Unmarshal(doc, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func ensureItemIDs(genID *snowflake.Node, items []domain.BillingItem) []domain.BillingItem {
	out := make([]domain.BillingItem, len(items))
	copy(out, items)
	for i := range out {
		if strings.TrimSpace(out[i].ID) == "" {
			out[i].ID = genID.Generate().String()
		}
	}
	return out
}

func ptrToString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
