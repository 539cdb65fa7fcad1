package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
	billingrepo "github.com/stackbill/stackbill/internal/billingmodel/repository"
	billingservice "github.com/stackbill/stackbill/internal/billingmodel/service"
	classifierservice "github.com/stackbill/stackbill/internal/classifier/service"
	"github.com/stackbill/stackbill/internal/config"
	reconcilerdomain "github.com/stackbill/stackbill/internal/reconciler/domain"
	"github.com/stackbill/stackbill/pkg/db/pagination"
)

// stubReconciler lets handler tests script the reconciler's behavior.
type stubReconciler struct {
	planErr   error
	deployErr error
	plan      *reconcilerdomain.RemoteOperationPlan
	deploy    *reconcilerdomain.DeployResponse
	actions   []reconcilerdomain.DeactivationAction
	cleanup   *reconcilerdomain.CleanupResult
}

func (s *stubReconciler) PlanDeployment(ctx context.Context, modelID string) (*reconcilerdomain.RemoteOperationPlan, error) {
	return s.plan, s.planErr
}

func (s *stubReconciler) Deploy(ctx context.Context, req reconcilerdomain.DeployRequest) (*reconcilerdomain.DeployResponse, error) {
	return s.deploy, s.deployErr
}

func (s *stubReconciler) ListRuns(ctx context.Context, req reconcilerdomain.ListRunsRequest) ([]reconcilerdomain.DeploymentRun, *pagination.PageInfo, error) {
	return []reconcilerdomain.DeploymentRun{}, &pagination.PageInfo{}, nil
}

func (s *stubReconciler) PlanCleanup(ctx context.Context) ([]reconcilerdomain.DeactivationAction, error) {
	return s.actions, nil
}

func (s *stubReconciler) ExecuteCleanup(ctx context.Context, actions []reconcilerdomain.DeactivationAction) (*reconcilerdomain.CleanupResult, error) {
	return s.cleanup, nil
}

func newTestServer(t *testing.T, reconcilerSvc reconcilerdomain.Service) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&billingdomain.BillingModel{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	log := zap.NewNop()
	modelSvc := billingservice.New(billingservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  billingrepo.Provide(),
	})
	tuning, err := config.NewClassifierConfigHolder()
	require.NoError(t, err)
	classifierSvc := classifierservice.New(classifierservice.Params{
		Log:    log,
		Tuning: tuning,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	return NewServer(ServerParams{
		Gin:           engine,
		Cfg:           config.Config{DefaultOrgID: 42},
		ClassifierSvc: classifierSvc,
		ModelSvc:      modelSvc,
		ReconcilerSvc: reconcilerSvc,
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	return rec
}

func TestClassifyEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubReconciler{})

	rec := doJSON(t, srv, http.MethodPost, "/api/classify", gin.H{
		"format": "csv",
		"data":   "meter_name,event_name,rate\nAPI Calls,api_calls,$0.02\nStorage,storage_gb,$0.10\n",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Structure          string `json:"structure"`
			Confidence         int    `json:"confidence"`
			SuggestedModelType string `json:"suggested_model_type"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "metered_services", resp.Data.Structure)
	assert.Equal(t, "pay_as_you_go", resp.Data.SuggestedModelType)
	assert.GreaterOrEqual(t, resp.Data.Confidence, 30)
}

func TestClassifyRequiresPayload(t *testing.T) {
	srv := newTestServer(t, &stubReconciler{})

	rec := doJSON(t, srv, http.MethodPost, "/api/classify", gin.H{"format": "csv"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBillingModelCRUD(t *testing.T) {
	srv := newTestServer(t, &stubReconciler{})

	created := doJSON(t, srv, http.MethodPost, "/api/billing_models", gin.H{
		"name":       "Usage Pricing",
		"model_type": "pay_as_you_go",
		"items": []gin.H{{
			"product_name": "API Calls",
			"currency":     "USD",
			"billing_kind": "metered",
			"metered":      gin.H{"event_name": "API Calls", "aggregation": "sum"},
		}},
	})
	require.Equal(t, http.StatusOK, created.Code)

	var createResp struct {
		Data struct {
			ID    string `json:"id"`
			Items []struct {
				Currency string `json:"currency"`
				Metered  struct {
					EventName string `json:"event_name"`
				} `json:"metered"`
			} `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &createResp))
	require.NotEmpty(t, createResp.Data.ID)
	require.Len(t, createResp.Data.Items, 1)
	assert.Equal(t, "usd", createResp.Data.Items[0].Currency)
	assert.Equal(t, "api_calls", createResp.Data.Items[0].Metered.EventName)

	got := doJSON(t, srv, http.MethodGet, "/api/billing_models/"+createResp.Data.ID, nil)
	assert.Equal(t, http.StatusOK, got.Code)

	list := doJSON(t, srv, http.MethodGet, "/api/billing_models?model_type=pay_as_you_go", nil)
	assert.Equal(t, http.StatusOK, list.Code)

	deleted := doJSON(t, srv, http.MethodDelete, "/api/billing_models/"+createResp.Data.ID, nil)
	assert.Equal(t, http.StatusOK, deleted.Code)

	missing := doJSON(t, srv, http.MethodGet, "/api/billing_models/"+createResp.Data.ID, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCreateBillingModelValidationFailure(t *testing.T) {
	srv := newTestServer(t, &stubReconciler{})

	rec := doJSON(t, srv, http.MethodPost, "/api/billing_models", gin.H{
		"name":       "",
		"model_type": "pay_as_you_go",
		"items":      []gin.H{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error.Type)
	assert.NotEmpty(t, resp.Error.Errors)
}

func TestDeployConflictMapsTo409(t *testing.T) {
	srv := newTestServer(t, &stubReconciler{deployErr: reconcilerdomain.ErrDeployInProgress})

	rec := doJSON(t, srv, http.MethodPost, "/api/billing_models/123/deploy", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCleanupEndpointsUseStubActions(t *testing.T) {
	stub := &stubReconciler{
		actions: []reconcilerdomain.DeactivationAction{{ProductID: "prod_dup", TierID: "starter"}},
		cleanup: &reconcilerdomain.CleanupResult{Deactivated: []string{"prod_dup"}},
	}
	srv := newTestServer(t, stub)

	plan := doJSON(t, srv, http.MethodPost, "/api/provider/cleanup/plan", nil)
	require.Equal(t, http.StatusOK, plan.Code)
	assert.Contains(t, plan.Body.String(), "prod_dup")

	run := doJSON(t, srv, http.MethodPost, "/api/provider/cleanup", nil)
	require.Equal(t, http.StatusOK, run.Code)
	assert.Contains(t, run.Body.String(), "prod_dup")
}
