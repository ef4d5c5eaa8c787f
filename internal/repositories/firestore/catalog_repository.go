package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/sparklehome/api/internal/domain"
	pfirestore "github.com/sparklehome/api/internal/platform/firestore"
	"github.com/sparklehome/api/internal/platform/pagination"
)

const (
	catalogServiceCollection = "catalog_services"
	catalogExtraCollection   = "catalog_extras"
)

// CatalogRepository serves the read-only cleaning service and extra
// definitions consulted by validation and pricing.
type CatalogRepository struct {
	provider *pfirestore.Provider
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{provider: provider}, nil
}

// GetService loads a catalog service definition.
func (r *CatalogRepository) GetService(ctx context.Context, serviceID string) (domain.CatalogService, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return domain.CatalogService{}, pfirestore.NewNotFoundError("catalog.getService", errors.New("service id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CatalogService{}, err
	}

	snap, err := getDoc(ctx, client.Collection(catalogServiceCollection).Doc(serviceID))
	if err != nil {
		return domain.CatalogService{}, pfirestore.WrapError("catalog.getService", err)
	}

	var service domain.CatalogService
	if err := snap.DataTo(&service); err != nil {
		return domain.CatalogService{}, pfirestore.WrapError("catalog.getService", fmt.Errorf("decode service %s: %w", serviceID, err))
	}
	if service.ID == "" {
		service.ID = snap.Ref.ID
	}
	return service, nil
}

// GetExtra loads a catalog extra definition.
func (r *CatalogRepository) GetExtra(ctx context.Context, extraID string) (domain.CatalogExtra, error) {
	extraID = strings.TrimSpace(extraID)
	if extraID == "" {
		return domain.CatalogExtra{}, pfirestore.NewNotFoundError("catalog.getExtra", errors.New("extra id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CatalogExtra{}, err
	}

	snap, err := getDoc(ctx, client.Collection(catalogExtraCollection).Doc(extraID))
	if err != nil {
		return domain.CatalogExtra{}, pfirestore.WrapError("catalog.getExtra", err)
	}

	var extra domain.CatalogExtra
	if err := snap.DataTo(&extra); err != nil {
		return domain.CatalogExtra{}, pfirestore.WrapError("catalog.getExtra", fmt.Errorf("decode extra %s: %w", extraID, err))
	}
	if extra.ID == "" {
		extra.ID = snap.Ref.ID
	}
	return extra, nil
}

// ListServices pages through active catalog services ordered by name.
func (r *CatalogRepository) ListServices(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogService], error) {
	snaps, nextToken, err := r.list(ctx, catalogServiceCollection, pager, "catalog.listServices")
	if err != nil {
		return domain.CursorPage[domain.CatalogService]{}, err
	}

	page := domain.CursorPage[domain.CatalogService]{NextPageToken: nextToken}
	for _, snap := range snaps {
		var service domain.CatalogService
		if err := snap.DataTo(&service); err != nil {
			return domain.CursorPage[domain.CatalogService]{}, pfirestore.WrapError("catalog.listServices", fmt.Errorf("decode service %s: %w", snap.Ref.ID, err))
		}
		if service.ID == "" {
			service.ID = snap.Ref.ID
		}
		page.Items = append(page.Items, service)
	}
	return page, nil
}

// ListExtras pages through active catalog extras ordered by name.
func (r *CatalogRepository) ListExtras(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CatalogExtra], error) {
	snaps, nextToken, err := r.list(ctx, catalogExtraCollection, pager, "catalog.listExtras")
	if err != nil {
		return domain.CursorPage[domain.CatalogExtra]{}, err
	}

	page := domain.CursorPage[domain.CatalogExtra]{NextPageToken: nextToken}
	for _, snap := range snaps {
		var extra domain.CatalogExtra
		if err := snap.DataTo(&extra); err != nil {
			return domain.CursorPage[domain.CatalogExtra]{}, pfirestore.WrapError("catalog.listExtras", fmt.Errorf("decode extra %s: %w", snap.Ref.ID, err))
		}
		if extra.ID == "" {
			extra.ID = snap.Ref.ID
		}
		page.Items = append(page.Items, extra)
	}
	return page, nil
}

func (r *CatalogRepository) list(ctx context.Context, collection string, pager domain.Pagination, op string) ([]*firestore.DocumentSnapshot, string, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, "", err
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	query := client.Collection(collection).
		Query.
		Where("active", "==", true).
		OrderBy("name", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return nil, "", err
		}
		if len(cursor.StartAfter) == 2 {
			query = query.StartAfter(cursor.StartAfter...)
		}
	}

	snaps, err := queryDocs(ctx, query)
	if err != nil {
		return nil, "", pfirestore.WrapError(op, err)
	}

	nextToken := ""
	if len(snaps) > pageSize {
		snaps = snaps[:pageSize]
		last := snaps[len(snaps)-1]
		name, _ := last.DataAt("name")
		nextToken, err = pagination.EncodeToken(pagination.Cursor{StartAfter: []any{name, last.Ref.ID}})
		if err != nil {
			return nil, "", err
		}
	}
	return snaps, nextToken, nil
}
