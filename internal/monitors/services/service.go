package services

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/monitors/dto"
	"vigil/internal/monitors/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// ValidationError rejects a registration with field-level detail. It is the
// only error kind that surfaces to the HTTP caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Service implements the monitor registry
type Service struct {
	repository *Repository
	validate   *validator.Validate
}

// NewService creates a new monitors service
func NewService(db *mongo.Database) *Service {
	return &Service{
		repository: NewRepository(db),
		validate:   validator.New(),
	}
}

// InitializeModule sets up indexes
func (s *Service) InitializeModule(ctx context.Context) error {
	return s.repository.CreateIndexes(ctx)
}

// Create registers a new monitor and returns its generated ID.
func (s *Service) Create(ctx context.Context, input *dto.CreateMonitorInput) (*models.MonitorConfig, error) {
	if err := s.validate.Var(input.Body.URL, "required,http_url"); err != nil {
		return nil, &ValidationError{Field: "url", Message: "must be a well-formed http(s) URL"}
	}
	if input.Body.AlertWebhookURL != "" {
		if err := s.validate.Var(input.Body.AlertWebhookURL, "http_url"); err != nil {
			return nil, &ValidationError{Field: "alertWebhookUrl", Message: "must be a well-formed http(s) URL"}
		}
	}
	if input.Body.AlertTo != "" {
		if err := s.validate.Var(input.Body.AlertTo, "email"); err != nil {
			return nil, &ValidationError{Field: "alertTo", Message: "must be a valid email address"}
		}
	}

	threshold := input.Body.FailureThreshold
	if threshold <= 0 {
		threshold = models.DefaultFailureThreshold
	}
	timeoutMS := input.Body.TimeoutMs
	if timeoutMS <= 0 {
		timeoutMS = models.DefaultTimeoutMS
	}

	monitor := &models.MonitorConfig{
		ID:               uuid.New().String(),
		URL:              input.Body.URL,
		Name:             input.Body.Name,
		FailureThreshold: threshold,
		TimeoutMS:        timeoutMS,
		AlertWebhookURL:  input.Body.AlertWebhookURL,
		AlertTo:          input.Body.AlertTo,
		EmailFrom:        input.Body.EmailFrom,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.repository.Create(ctx, monitor); err != nil {
		return nil, err
	}

	return monitor, nil
}

// Get returns one monitor config, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.MonitorConfig, error) {
	return s.repository.GetByID(ctx, id)
}

// List returns all registered monitors.
func (s *Service) List(ctx context.Context) ([]models.MonitorConfig, error) {
	return s.repository.List(ctx)
}
