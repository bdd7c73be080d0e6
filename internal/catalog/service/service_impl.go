package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/tabledesk/internal/cache"
	"github.com/smallbiznis/tabledesk/internal/catalog/domain"
	"github.com/smallbiznis/tabledesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.RestaurantCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.RestaurantCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) GetRestaurant(ctx context.Context, rawSlug string) (*domain.Restaurant, error) {
	normalized := slug.Make(strings.TrimSpace(rawSlug))
	if normalized == "" || !slug.IsSlug(normalized) {
		return nil, domain.ErrInvalidSlug
	}
	if s.cache != nil {
		if cached, ok := s.cache.GetBySlug(normalized); ok {
			return &cached, nil
		}
	}

	rest, err := s.repo.FindRestaurantBySlug(ctx, s.db, normalized)
	if err != nil {
		return nil, db.Classify(err)
	}
	if rest == nil {
		return nil, domain.ErrRestaurantNotFound
	}
	if s.cache != nil {
		s.cache.SetBySlug(normalized, *rest)
	}
	return rest, nil
}

func (s *Service) GetRestaurantByID(ctx context.Context, id int64) (*domain.Restaurant, error) {
	rest, err := s.repo.FindRestaurantByID(ctx, s.db, id)
	if err != nil {
		return nil, db.Classify(err)
	}
	if rest == nil {
		return nil, domain.ErrRestaurantNotFound
	}
	return rest, nil
}

func (s *Service) ListProducts(ctx context.Context, req domain.ListProductsRequest) ([]domain.ProductResponse, error) {
	rest, err := s.GetRestaurant(ctx, req.RestaurantSlug)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListProducts(ctx, s.db, rest.ID, !req.IncludeInactive)
	if err != nil {
		return nil, db.Classify(err)
	}

	resp := make([]domain.ProductResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(item))
	}
	return resp, nil
}

// ProductsByIDs loads the referenced products keyed by id. A store failure is
// reported as ErrCatalogUnavailable so callers can tell it from a bad id.
func (s *Service) ProductsByIDs(ctx context.Context, restaurantID int64, ids []int64) (map[int64]domain.Product, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	items, err := s.repo.FindProductsByIDs(ctx, s.db, restaurantID, unique)
	if err != nil {
		s.log.Warn("product lookup failed",
			zap.Int64("restaurant_id", restaurantID),
			zap.Int("requested", len(unique)),
			zap.Error(err),
		)
		return nil, domain.ErrCatalogUnavailable
	}

	out := make(map[int64]domain.Product, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func toResponse(p domain.Product) domain.ProductResponse {
	return domain.ProductResponse{
		ID:        strconv.FormatInt(p.ID, 10),
		Name:      p.Name,
		Category:  p.Category,
		Price:     p.Price,
		Extras:    toOptions(p.Extras),
		Excludes:  toOptions(p.Excludes),
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}

func toOptions(opts []domain.ModifierOption) []domain.OptionResponse {
	out := make([]domain.OptionResponse, 0, len(opts))
	for _, opt := range opts {
		out = append(out, domain.OptionResponse{Label: opt.Label, Price: opt.Price})
	}
	return out
}
