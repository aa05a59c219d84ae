package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/models"
)

// CustomerService manages customer records.
type CustomerService struct {
	*Service[models.Customer]
}

// NewCustomerService wires the customer service.
func NewCustomerService(deps Deps) (*CustomerService, error) {
	svc, err := NewService[models.Customer](models.EntityCustomers, deps)
	if err != nil {
		return nil, err
	}
	return &CustomerService{Service: svc}, nil
}

// ItemService manages catalog items.
type ItemService struct {
	*Service[models.Item]
}

// NewItemService wires the item service.
func NewItemService(deps Deps) (*ItemService, error) {
	svc, err := NewService[models.Item](models.EntityItems, deps)
	if err != nil {
		return nil, err
	}
	return &ItemService{Service: svc}, nil
}

// ListByCategory returns the owner's items in category.
func (s *ItemService) ListByCategory(ctx context.Context, ownerID, category string) ([]models.Item, error) {
	if s == nil || s.Service == nil {
		return nil, ErrNotInitialised
	}
	return s.byIndex(ctx, ownerID, "category", strings.TrimSpace(category), func(item models.Item) string {
		return item.Category
	})
}

// QuoteService manages quotes.
type QuoteService struct {
	*Service[models.Quote]
}

// NewQuoteService wires the quote service.
func NewQuoteService(deps Deps) (*QuoteService, error) {
	svc, err := NewService[models.Quote](models.EntityQuotes, deps)
	if err != nil {
		return nil, err
	}
	return &QuoteService{Service: svc}, nil
}

// ListByStatus returns the owner's quotes with status.
func (s *QuoteService) ListByStatus(ctx context.Context, ownerID, status string) ([]models.Quote, error) {
	if s == nil || s.Service == nil {
		return nil, ErrNotInitialised
	}
	return s.byIndex(ctx, ownerID, "status", strings.TrimSpace(status), func(quote models.Quote) string {
		return quote.Status
	})
}

// ListByCustomer returns the owner's quotes addressed to customerID.
func (s *QuoteService) ListByCustomer(ctx context.Context, ownerID, customerID string) ([]models.Quote, error) {
	if s == nil || s.Service == nil {
		return nil, ErrNotInitialised
	}
	return s.byIndex(ctx, ownerID, "customer_id", strings.TrimSpace(customerID), func(quote models.Quote) string {
		return quote.CustomerID
	})
}

// SettingsService manages the per-owner settings row.
type SettingsService struct {
	svc *Service[models.Settings]
}

// NewSettingsService wires the settings service.
func NewSettingsService(deps Deps) (*SettingsService, error) {
	svc, err := NewService[models.Settings](models.EntitySettings, deps)
	if err != nil {
		return nil, err
	}
	return &SettingsService{svc: svc}, nil
}

// Get returns the owner's settings, if any exist.
func (s *SettingsService) Get(ctx context.Context, ownerID string) (models.Settings, bool, error) {
	if s == nil || s.svc == nil {
		return models.Settings{}, false, ErrNotInitialised
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return models.Settings{}, false, ErrOwnerRequired
	}
	return s.svc.Get(ctx, ownerID, ownerID)
}

// Save creates or replaces the owner's settings.
func (s *SettingsService) Save(ctx context.Context, ownerID string, settings models.Settings) (models.Settings, error) {
	if s == nil || s.svc == nil {
		return models.Settings{}, ErrNotInitialised
	}
	ctx = ensuredContext(ctx)
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return models.Settings{}, ErrOwnerRequired
	}

	kind := models.ChangeCreate
	if existing, found, err := s.svc.local.Get(ctx, ownerID); err == nil && found {
		kind = models.ChangeUpdate
		if settings.CreatedAt.IsZero() {
			settings.CreatedAt = existing.CreatedAt
		}
	}
	return s.svc.save(ctx, ownerID, settings, kind)
}

// Service exposes the generic service for callers that treat settings like any other entity.
func (s *SettingsService) Service() *Service[models.Settings] { return s.svc }

// byIndex answers an indexed query from the durable store, falling back to
// filtering the owner's full list.
func (s *Service[T]) byIndex(ctx context.Context, ownerID, column, value string, field func(T) string) ([]T, error) {
	ctx = ensuredContext(ctx)
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	if s.local.Available() {
		indexed, err := s.local.GetByIndex(ctx, ownerID, column, value)
		if err == nil && len(indexed) > 0 {
			s.record("list_by_"+column, "local")
			return indexed, nil
		}
		if err != nil {
			s.log.Warn("index query failed", zap.String("column", column), zap.Error(err))
		}
	}

	all, err := s.List(ctx, ownerID, false)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for _, record := range all {
		if field(record) == value {
			out = append(out, record)
		}
	}
	return out, nil
}
