// Package menu serves the public, unauthenticated menu read path. It is
// the hottest endpoint in the system, so responses are cached briefly in
// redis and the view counter is bumped off the request path.
package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/cache"
	"github.com/tablecode/tablecode/internal/models"
	"github.com/tablecode/tablecode/internal/slug"
)

const cacheTTL = 60 * time.Second

// PublicMenu is the payload rendered for diners. It exposes only display
// fields, never lifecycle or credential state.
type PublicMenu struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	City       string            `json:"city,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Theme      string            `json:"theme"`
	Categories []models.Category `json:"categories"`
}

// TenantFinder resolves a menu code to its tenant.
type TenantFinder interface {
	FindByCode(ctx context.Context, code string) (*models.Hotel, error)
}

// ViewCounter records a public menu view.
type ViewCounter interface {
	IncrementViews(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	db      *pgxpool.Pool
	tenants TenantFinder
	views   ViewCounter
	cache   *cache.Cache
	logger  *zap.Logger
}

func NewService(db *pgxpool.Pool, tenants TenantFinder, views ViewCounter, c *cache.Cache, logger *zap.Logger) *Service {
	return &Service{db: db, tenants: tenants, views: views, cache: c, logger: logger}
}

func cacheKey(code string) string { return "menu:" + code }

// Get returns the public menu for a code. Tenants that are suspended or
// deleted read as not found; nothing distinguishes them from a code that
// was never issued.
func (s *Service) Get(ctx context.Context, code string) (*PublicMenu, error) {
	code = slug.Normalize(code)
	if err := slug.Validate(code); err != nil {
		return nil, err
	}

	var cached PublicMenu
	err := s.cache.Get(ctx, cacheKey(code), &cached)
	if err == nil {
		s.countView(code)
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("menu cache read failed", zap.String("code", code), zap.Error(err))
	}

	h, err := s.tenants.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !h.Status.Live() {
		return nil, apperr.NotFound("hotel not found")
	}

	categories, err := s.loadCategories(ctx, h.ID, true)
	if err != nil {
		return nil, err
	}

	menu := &PublicMenu{
		Code:       h.Code,
		Name:       h.Name,
		City:       h.City,
		Phone:      h.Phone,
		Theme:      h.Theme,
		Categories: categories,
	}

	if err := s.cache.Set(ctx, cacheKey(code), menu, cacheTTL); err != nil {
		s.logger.Warn("menu cache write failed", zap.String("code", code), zap.Error(err))
	}
	s.countView(code)
	return menu, nil
}

// Invalidate drops the cached menu, called after tenant display changes.
func (s *Service) Invalidate(ctx context.Context, code string) {
	if err := s.cache.Delete(ctx, cacheKey(code)); err != nil {
		s.logger.Warn("menu cache invalidate failed", zap.String("code", code), zap.Error(err))
	}
}

// countView bumps the counter off the request path. Uses a detached
// context so a slow write never delays or fails the response.
func (s *Service) countView(code string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		h, err := s.tenants.FindByCode(ctx, code)
		if err != nil {
			return
		}
		if err := s.views.IncrementViews(ctx, h.ID); err != nil {
			s.logger.Warn("view increment failed", zap.String("code", code), zap.Error(err))
		}
	}()
}

// FullMenu returns every category and item for a tenant, unavailable
// items included. The owner dashboard needs the hidden rows too.
func (s *Service) FullMenu(ctx context.Context, hotelID uuid.UUID) ([]models.Category, error) {
	return s.loadCategories(ctx, hotelID, false)
}

func (s *Service) loadCategories(ctx context.Context, hotelID uuid.UUID, onlyAvailable bool) ([]models.Category, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, hotel_id, name, sort_order, created_at
		 FROM categories WHERE hotel_id = $1 ORDER BY sort_order, created_at`, hotelID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.HotelID, &c.Name, &c.SortOrder, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Items = []models.Item{}
		index[c.ID] = len(categories)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return []models.Category{}, nil
	}

	itemQuery := `SELECT i.id, i.category_id, i.name, i.description, i.price, i.image_url,
			i.is_veg, i.is_popular, i.is_available, i.sort_order, i.created_at
		 FROM items i
		 JOIN categories c ON c.id = i.category_id
		 WHERE c.hotel_id = $1`
	if onlyAvailable {
		itemQuery += ` AND i.is_available`
	}
	itemQuery += ` ORDER BY i.sort_order, i.created_at`

	itemRows, err := s.db.Query(ctx, itemQuery, hotelID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it models.Item
		if err := itemRows.Scan(&it.ID, &it.CategoryID, &it.Name, &it.Description, &it.Price, &it.ImageURL,
			&it.IsVeg, &it.IsPopular, &it.IsAvailable, &it.SortOrder, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if i, ok := index[it.CategoryID]; ok {
			categories[i].Items = append(categories[i].Items, it)
		}
	}
	return categories, itemRows.Err()
}
