package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/sparklehome/api/internal/domain"
	"github.com/sparklehome/api/internal/repositories"
)

// CartLine is one entry of the cart submitted at creation or modification
// time: a catalog id plus a positive quantity.
type CartLine struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Cart groups the service and extra selections to be priced.
type Cart struct {
	Services []CartLine
	Extras   []CartLine
}

// PricedCart is the result of pricing a cart against the current catalog
// snapshot. Unit prices are copied into the lines; later catalog changes do
// not alter them.
type PricedCart struct {
	Services []domain.ServiceLine
	Extras   []domain.ExtraLine
	Total    domain.Money
}

// PricingEngineDeps wires the catalog dependency into the engine.
type PricingEngineDeps struct {
	Catalog  repositories.CatalogRepository
	Currency string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// PricingEngine turns a cart into priced line items and a grand total. The
// computation is a pure function of the catalog snapshot and the cart.
type PricingEngine struct {
	catalog  repositories.CatalogRepository
	currency string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewPricingEngine constructs the engine, validating its dependencies.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: catalog repository is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("pricing engine: currency is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{catalog: deps.Catalog, currency: currency, logger: logger}, nil
}

// PriceCart prices every cart line against the catalog and sums the grand
// total. A missing or inactive catalog entry fails with ErrInvalidReference;
// a non-positive quantity fails with ErrInvalidQuantity. The cart must not be
// empty of services.
func (e *PricingEngine) PriceCart(ctx context.Context, cart Cart) (PricedCart, error) {
	if len(cart.Services) == 0 {
		return PricedCart{}, NewValidationError("services", "at least one service is required")
	}

	priced := PricedCart{Total: domain.NewMoney(0, e.currency)}

	for i, line := range cart.Services {
		field := fmt.Sprintf("services[%d]", i)
		if err := validateQuantity(line, field); err != nil {
			return PricedCart{}, err
		}

		service, err := e.catalog.GetService(ctx, line.ID)
		if err != nil {
			if isNotFound(err) {
				return PricedCart{}, fmt.Errorf("%w: service %s", ErrInvalidReference, line.ID)
			}
			return PricedCart{}, mapRepositoryError(err, nil)
		}
		if !service.Active {
			return PricedCart{}, fmt.Errorf("%w: service %s is inactive", ErrInvalidReference, line.ID)
		}

		total, err := e.lineTotal(service.Price, line.Quantity)
		if err != nil {
			return PricedCart{}, err
		}
		priced.Services = append(priced.Services, domain.ServiceLine{
			ServiceID: service.ID,
			Name:      service.Name,
			Quantity:  line.Quantity,
			UnitPrice: service.Price,
			Total:     total,
		})
		if priced.Total, err = priced.Total.Add(total); err != nil {
			return PricedCart{}, err
		}
	}

	for i, line := range cart.Extras {
		field := fmt.Sprintf("extras[%d]", i)
		if err := validateQuantity(line, field); err != nil {
			return PricedCart{}, err
		}

		extra, err := e.catalog.GetExtra(ctx, line.ID)
		if err != nil {
			if isNotFound(err) {
				return PricedCart{}, fmt.Errorf("%w: extra %s", ErrInvalidReference, line.ID)
			}
			return PricedCart{}, mapRepositoryError(err, nil)
		}
		if !extra.Active {
			return PricedCart{}, fmt.Errorf("%w: extra %s is inactive", ErrInvalidReference, line.ID)
		}

		total, err := e.lineTotal(extra.Price, line.Quantity)
		if err != nil {
			return PricedCart{}, err
		}
		priced.Extras = append(priced.Extras, domain.ExtraLine{
			ExtraID:   extra.ID,
			Name:      extra.Name,
			Quantity:  line.Quantity,
			UnitPrice: extra.Price,
			Total:     total,
		})
		if priced.Total, err = priced.Total.Add(total); err != nil {
			return PricedCart{}, err
		}
	}

	e.logger(ctx, "cart priced", map[string]any{
		"services": len(priced.Services),
		"extras":   len(priced.Extras),
		"total":    priced.Total.Units,
		"currency": priced.Total.Currency,
	})
	return priced, nil
}

func (e *PricingEngine) lineTotal(unit domain.Money, quantity int) (domain.Money, error) {
	if !strings.EqualFold(unit.Currency, e.currency) {
		return domain.Money{}, fmt.Errorf("%w: catalog price in %s, engine expects %s",
			domain.ErrMoneyCurrencyMismatch, unit.Currency, e.currency)
	}
	return unit.MulQuantity(quantity), nil
}

// maxLineQuantity bounds a single cart line so the minor-unit line total
// cannot overflow int64.
const maxLineQuantity = 1000

func validateQuantity(line CartLine, field string) error {
	if strings.TrimSpace(line.ID) == "" {
		return NewValidationError(field+".id", "catalog id is required")
	}
	if line.Quantity <= 0 {
		return fmt.Errorf("%w: %s.quantity must be positive, got %d", ErrInvalidQuantity, field, line.Quantity)
	}
	if line.Quantity > maxLineQuantity {
		return fmt.Errorf("%w: %s.quantity exceeds the maximum of %d", ErrInvalidQuantity, field, maxLineQuantity)
	}
	return nil
}
