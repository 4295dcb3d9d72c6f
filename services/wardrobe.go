package services

import (
	"context"
	"errors"
	"fmt"

	"tryonapi/models"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// WardrobeProvider persists wardrobe items and try-on jobs.
type WardrobeProvider interface {
	AddItem(ctx context.Context, item *models.Clothing) (uint, error)
	List(ctx context.Context, owner string) ([]models.Clothing, error)
	GetItem(ctx context.Context, id uint) (*models.Clothing, error)
	// GetItems returns the owner's items in the order of ids, failing if any is missing.
	GetItems(ctx context.Context, owner string, ids []int64) ([]models.Clothing, error)
	SaveItem(ctx context.Context, item *models.Clothing) error

	CreateTryOn(ctx context.Context, generation *models.TryOnGeneration) (uint, error)
	GetTryOn(ctx context.Context, id uint) (*models.TryOnGeneration, error)
	SaveTryOn(ctx context.Context, generation *models.TryOnGeneration) error
}

var _ WardrobeProvider = (*WardrobeService)(nil)

type WardrobeService struct {
	DB *gorm.DB
}

func NewWardrobeService(db *gorm.DB) *WardrobeService {
	return &WardrobeService{DB: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *WardrobeService) AddItem(ctx context.Context, item *models.Clothing) (uint, error) {
	if item.ProcessingStatus == "" {
		item.ProcessingStatus = models.StatusIdle
	}
	if err := s.DB.WithContext(ctx).Create(item).Error; err != nil {
		return 0, err
	}
	return item.ID, nil
}

func (s *WardrobeService) List(ctx context.Context, owner string) ([]models.Clothing, error) {
	var items []models.Clothing
	err := s.DB.WithContext(ctx).Where("owner_subject = ?", owner).Order("id").Find(&items).Error
	return items, err
}

func (s *WardrobeService) GetItem(ctx context.Context, id uint) (*models.Clothing, error) {
	var item models.Clothing
	if err := s.DB.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *WardrobeService) GetItems(ctx context.Context, owner string, ids []int64) ([]models.Clothing, error) {
	var found []models.Clothing
	if err := s.DB.WithContext(ctx).Where("owner_subject = ? AND id IN ?", owner, ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Clothing, len(found))
	for _, item := range found {
		byID[int64(item.ID)] = item
	}

	items := make([]models.Clothing, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("clothing %d: %w", id, ErrNotFound)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *WardrobeService) SaveItem(ctx context.Context, item *models.Clothing) error {
	return s.DB.WithContext(ctx).Save(item).Error
}

func (s *WardrobeService) CreateTryOn(ctx context.Context, generation *models.TryOnGeneration) (uint, error) {
	if generation.Status == "" {
		generation.Status = models.StatusPending
	}
	if err := s.DB.WithContext(ctx).Create(generation).Error; err != nil {
		return 0, err
	}
	return generation.ID, nil
}

func (s *WardrobeService) GetTryOn(ctx context.Context, id uint) (*models.TryOnGeneration, error) {
	var generation models.TryOnGeneration
	if err := s.DB.WithContext(ctx).First(&generation, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &generation, nil
}

func (s *WardrobeService) SaveTryOn(ctx context.Context, generation *models.TryOnGeneration) error {
	return s.DB.WithContext(ctx).Save(generation).Error
}
