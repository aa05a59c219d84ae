package services

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/quotesync/internal/cache"
	"github.com/charlesng35/quotesync/internal/models"
)

// Services bundles the entity services sharing one set of collaborators.
type Services struct {
	Customers *CustomerService
	Items     *ItemService
	Quotes    *QuoteService
	Settings  *SettingsService

	cache *cache.Cache
}

// New wires every entity service from deps.
func New(deps Deps) (*Services, error) {
	customers, err := NewCustomerService(deps)
	if err != nil {
		return nil, err
	}
	items, err := NewItemService(deps)
	if err != nil {
		return nil, err
	}
	quotes, err := NewQuoteService(deps)
	if err != nil {
		return nil, err
	}
	settings, err := NewSettingsService(deps)
	if err != nil {
		return nil, err
	}
	return &Services{
		Customers: customers,
		Items:     items,
		Quotes:    quotes,
		Settings:  settings,
		cache:     deps.Cache,
	}, nil
}

// Preload warms the cache for every entity configured for preloading. The
// entities load concurrently; the first caller error is returned.
func (s *Services) Preload(ctx context.Context, ownerID string) error {
	if s == nil {
		return ErrNotInitialised
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return ErrOwnerRequired
	}

	g, ctx := errgroup.WithContext(ensuredContext(ctx))
	for _, entity := range models.EntityTypes {
		if !s.cache.Config(entity).Preload {
			continue
		}
		g.Go(func() error {
			return s.load(ctx, ownerID, entity)
		})
	}
	return g.Wait()
}

func (s *Services) load(ctx context.Context, ownerID string, entity models.EntityType) error {
	switch entity {
	case models.EntityCustomers:
		_, err := s.Customers.List(ctx, ownerID, false)
		return err
	case models.EntityItems:
		_, err := s.Items.List(ctx, ownerID, false)
		return err
	case models.EntityQuotes:
		_, err := s.Quotes.List(ctx, ownerID, false)
		return err
	case models.EntitySettings:
		_, _, err := s.Settings.Get(ctx, ownerID)
		return err
	}
	return nil
}
