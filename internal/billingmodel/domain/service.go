package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
}

type CreateRequest struct {
	Name        string        `json:"name"`
	Description *string       `json:"description"`
	ModelType   ModelType     `json:"model_type"`
	Items       []BillingItem `json:"items"`
}

type UpdateRequest struct {
	ID          string        `json:"id"`
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	ModelType   *ModelType    `json:"model_type,omitempty"`
	Items       []BillingItem `json:"items,omitempty"`
}

type ListRequest struct {
	ModelType string
	SortBy    string
	OrderBy   string
}

type Response struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Name           string        `json:"name"`
	Description    *string       `json:"description,omitempty"`
	ModelType      ModelType     `json:"model_type"`
	Items          []BillingItem `json:"items"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
)
