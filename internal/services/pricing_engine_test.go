package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/sparklehome/api/internal/domain"
)

func testCatalog() *stubCatalogRepo {
	return &stubCatalogRepo{
		services: map[string]domain.CatalogService{
			"svc_deep": {ID: "svc_deep", Name: "Deep Clean", Price: domain.NewMoney(1000, "USD"), Active: true},
			"svc_move": {ID: "svc_move", Name: "Move-out Clean", Price: domain.NewMoney(2500, "USD"), Active: true},
			"svc_old":  {ID: "svc_old", Name: "Retired Package", Price: domain.NewMoney(900, "USD"), Active: false},
		},
		extras: map[string]domain.CatalogExtra{
			"ext_oven":    {ID: "ext_oven", Name: "Oven", Price: domain.NewMoney(500, "USD"), Active: true},
			"ext_windows": {ID: "ext_windows", Name: "Windows", Price: domain.NewMoney(750, "USD"), Active: false},
		},
	}
}

func newTestEngine(t *testing.T) *PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(PricingEngineDeps{Catalog: testCatalog(), Currency: "USD"})
	if err != nil {
		t.Fatalf("NewPricingEngine returned %v", err)
	}
	return engine
}

func TestPriceCartSumsLines(t *testing.T) {
	engine := newTestEngine(t)

	priced, err := engine.PriceCart(context.Background(), Cart{
		Services: []CartLine{{ID: "svc_deep", Quantity: 2}},
		Extras:   []CartLine{{ID: "ext_oven", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("PriceCart returned %v", err)
	}

	if got := priced.Total; !got.Equal(domain.NewMoney(2500, "USD")) {
		t.Fatalf("total = %d %s, want 2500 USD", got.Units, got.Currency)
	}
	if len(priced.Services) != 1 || len(priced.Extras) != 1 {
		t.Fatalf("lines = %d services, %d extras", len(priced.Services), len(priced.Extras))
	}

	line := priced.Services[0]
	if line.ServiceID != "svc_deep" || line.Quantity != 2 {
		t.Fatalf("service line = %+v", line)
	}
	if !line.UnitPrice.Equal(domain.NewMoney(1000, "USD")) {
		t.Fatalf("unit price = %+v", line.UnitPrice)
	}
	if !line.Total.Equal(domain.NewMoney(2000, "USD")) {
		t.Fatalf("line total = %+v", line.Total)
	}
}

func TestPriceCartSnapshotsCatalogPrices(t *testing.T) {
	catalog := testCatalog()
	engine, err := NewPricingEngine(PricingEngineDeps{Catalog: catalog, Currency: "USD"})
	if err != nil {
		t.Fatalf("NewPricingEngine returned %v", err)
	}

	priced, err := engine.PriceCart(context.Background(), Cart{
		Services: []CartLine{{ID: "svc_deep", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("PriceCart returned %v", err)
	}

	// A later catalog change must not be visible in the already priced lines.
	catalog.services["svc_deep"] = domain.CatalogService{
		ID: "svc_deep", Name: "Deep Clean", Price: domain.NewMoney(9999, "USD"), Active: true,
	}
	if !priced.Services[0].UnitPrice.Equal(domain.NewMoney(1000, "USD")) {
		t.Fatalf("unit price moved with catalog: %+v", priced.Services[0].UnitPrice)
	}
}

func TestPriceCartRejectsBadInput(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		name string
		cart Cart
		want error
	}{
		{
			name: "empty services",
			cart: Cart{},
		},
		{
			name: "unknown service",
			cart: Cart{Services: []CartLine{{ID: "svc_ghost", Quantity: 1}}},
			want: ErrInvalidReference,
		},
		{
			name: "inactive service",
			cart: Cart{Services: []CartLine{{ID: "svc_old", Quantity: 1}}},
			want: ErrInvalidReference,
		},
		{
			name: "unknown extra",
			cart: Cart{
				Services: []CartLine{{ID: "svc_deep", Quantity: 1}},
				Extras:   []CartLine{{ID: "ext_ghost", Quantity: 1}},
			},
			want: ErrInvalidReference,
		},
		{
			name: "inactive extra",
			cart: Cart{
				Services: []CartLine{{ID: "svc_deep", Quantity: 1}},
				Extras:   []CartLine{{ID: "ext_windows", Quantity: 1}},
			},
			want: ErrInvalidReference,
		},
		{
			name: "zero quantity",
			cart: Cart{Services: []CartLine{{ID: "svc_deep", Quantity: 0}}},
			want: ErrInvalidQuantity,
		},
		{
			name: "negative quantity",
			cart: Cart{Services: []CartLine{{ID: "svc_deep", Quantity: -3}}},
			want: ErrInvalidQuantity,
		},
		{
			name: "quantity above cap",
			cart: Cart{Services: []CartLine{{ID: "svc_deep", Quantity: maxLineQuantity + 1}}},
			want: ErrInvalidQuantity,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.PriceCart(context.Background(), tc.cart)
			if err == nil {
				t.Fatal("PriceCart succeeded, want error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("PriceCart error = %v, want %v", err, tc.want)
			}
			if tc.want == nil {
				if _, ok := AsValidationError(err); !ok {
					t.Fatalf("PriceCart error = %v, want validation error", err)
				}
			}
		})
	}
}

func TestPriceCartRejectsCurrencyMismatch(t *testing.T) {
	catalog := testCatalog()
	catalog.services["svc_eur"] = domain.CatalogService{
		ID: "svc_eur", Name: "Imported", Price: domain.NewMoney(1000, "EUR"), Active: true,
	}
	engine, err := NewPricingEngine(PricingEngineDeps{Catalog: catalog, Currency: "USD"})
	if err != nil {
		t.Fatalf("NewPricingEngine returned %v", err)
	}

	_, err = engine.PriceCart(context.Background(), Cart{
		Services: []CartLine{{ID: "svc_eur", Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrMoneyCurrencyMismatch) {
		t.Fatalf("PriceCart error = %v, want currency mismatch", err)
	}
}
