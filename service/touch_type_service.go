package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TouchTypeService manages the catalog of touch types.
type TouchTypeService struct {
	db *gorm.DB
}

func NewTouchTypeService(db *gorm.DB) *TouchTypeService {
	return &TouchTypeService{db: db}
}

// visibleTo keeps public touch types and the private ones owned by userID.
func visibleTo(userID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("touch_types.is_private = ? OR touch_types.created_by_id = ?", false, userID)
	}
}

// PopularTouchType is a touch type with the number of users who favorited it.
type PopularTouchType struct {
	model.TouchType
	FavoriteCount int64 `json:"favorite_count"`
}

func (s *TouchTypeService) find(ctx context.Context, id uuid.UUID) (*model.TouchType, error) {
	var tt model.TouchType
	if err := s.db.WithContext(ctx).First(&tt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("touchType not found with id: %s", id)
		}
		return nil, persistence(err, "failed to lookup touch type")
	}
	return &tt, nil
}

// GetVisible loads a touch type userID is allowed to use.
func (s *TouchTypeService) GetVisible(ctx context.Context, userID, id uuid.UUID) (*model.TouchType, error) {
	tt, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tt.IsVisibleTo(userID) {
		return nil, notAuthorized("touch type %s is private", id)
	}
	return tt, nil
}

// Create validates and stores a new touch type owned by userID.
func (s *TouchTypeService) Create(ctx context.Context, userID uuid.UUID, in TouchTypeInput) (*model.TouchType, error) {
	tt, err := ValidateTouchType(in, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(tt).Error; err != nil {
		return nil, persistence(err, "failed to create touch type")
	}
	return tt, nil
}

// Update replaces the definition of a touch type owned by userID.
func (s *TouchTypeService) Update(ctx context.Context, userID, id uuid.UUID, in TouchTypeInput) (*model.TouchType, error) {
	existing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.CreatedByID == nil || *existing.CreatedByID != userID {
		return nil, notAuthorized("only the creator can edit a touch type")
	}

	tt, err := ValidateTouchType(in, userID)
	if err != nil {
		return nil, err
	}
	tt.ID = existing.ID
	tt.CreatedAt = existing.CreatedAt

	if err := s.db.WithContext(ctx).Save(tt).Error; err != nil {
		return nil, persistence(err, "failed to update touch type")
	}
	return tt, nil
}

// Delete removes a touch type together with every touch and favorite that
// references it. Only the creator or an admin may delete.
func (s *TouchTypeService) Delete(ctx context.Context, userID, id uuid.UUID, isAdmin bool) error {
	tt, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !isAdmin && (tt.CreatedByID == nil || *tt.CreatedByID != userID) {
		return notAuthorized("only the creator can delete a touch type")
	}
	return s.deleteCascade(ctx, id)
}

func (s *TouchTypeService) deleteCascade(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("touch_type_id = ?", id).Delete(&model.Touch{}).Error; err != nil {
			return fmt.Errorf("failed to delete touches: %w", err)
		}
		if err := tx.Where("touch_type_id = ?", id).Delete(&model.UserTouchType{}).Error; err != nil {
			return fmt.Errorf("failed to delete favorites: %w", err)
		}
		if err := tx.Delete(&model.TouchType{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete touch type: %w", err)
		}
		return nil
	})
	if err != nil {
		return persistence(err, "failed to delete touch type %s", id)
	}
	return nil
}

// ListVisible returns every touch type userID can use.
func (s *TouchTypeService) ListVisible(ctx context.Context, userID uuid.UUID) ([]model.TouchType, error) {
	var types []model.TouchType
	err := s.db.WithContext(ctx).Scopes(visibleTo(userID)).
		Order("is_default DESC, created_at ASC").
		Find(&types).Error
	if err != nil {
		return nil, persistence(err, "failed to get touch types")
	}
	return types, nil
}

// ListCreated returns the touch types userID created, newest first.
func (s *TouchTypeService) ListCreated(ctx context.Context, userID uuid.UUID) ([]model.TouchType, error) {
	var types []model.TouchType
	err := s.db.WithContext(ctx).
		Where("created_by_id = ?", userID).
		Order("created_at DESC").
		Find(&types).Error
	if err != nil {
		return nil, persistence(err, "failed to get created touch types")
	}
	return types, nil
}

// ListNewest pages through visible touch types, newest first.
func (s *TouchTypeService) ListNewest(ctx context.Context, userID uuid.UUID, page int) ([]model.TouchType, error) {
	var types []model.TouchType
	err := s.db.WithContext(ctx).Scopes(visibleTo(userID), utils.Paginate(page)).
		Order("created_at DESC").
		Find(&types).Error
	if err != nil {
		return nil, persistence(err, "failed to get newest touch types")
	}
	return types, nil
}

// ListPopular pages through visible touch types by favorite count.
func (s *TouchTypeService) ListPopular(ctx context.Context, userID uuid.UUID, page int) ([]PopularTouchType, error) {
	var counts []struct {
		ID            uuid.UUID
		FavoriteCount int64
	}
	err := s.db.WithContext(ctx).Model(&model.TouchType{}).
		Select("touch_types.id AS id, COUNT(user_touch_types.id) AS favorite_count").
		Joins("LEFT JOIN user_touch_types ON user_touch_types.touch_type_id = touch_types.id").
		Scopes(visibleTo(userID), utils.Paginate(page)).
		Group("touch_types.id, touch_types.created_at").
		Order("favorite_count DESC, touch_types.created_at DESC").
		Scan(&counts).Error
	if err != nil {
		return nil, persistence(err, "failed to get popular touch types")
	}
	if len(counts) == 0 {
		return []PopularTouchType{}, nil
	}

	ids := make([]uuid.UUID, len(counts))
	for i, c := range counts {
		ids[i] = c.ID
	}
	var types []model.TouchType
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&types).Error; err != nil {
		return nil, persistence(err, "failed to get popular touch types")
	}
	byID := make(map[uuid.UUID]model.TouchType, len(types))
	for _, tt := range types {
		byID[tt.ID] = tt
	}

	result := make([]PopularTouchType, 0, len(counts))
	for _, c := range counts {
		if tt, ok := byID[c.ID]; ok {
			result = append(result, PopularTouchType{TouchType: tt, FavoriteCount: c.FavoriteCount})
		}
	}
	return result, nil
}

// RemoveUnused deletes, with cascade, every touch type that no user has
// favorited. progress is called after each deletion.
func (s *TouchTypeService) RemoveUnused(ctx context.Context, progress func(done, total int)) (int, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&model.TouchType{}).
		Where("id NOT IN (?)", s.db.Model(&model.UserTouchType{}).Select("touch_type_id")).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, persistence(err, "failed to find unused touch types")
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.deleteCascade(ctx, id); err != nil {
			return i, err
		}
		if progress != nil {
			progress(i+1, len(ids))
		}
	}
	return len(ids), nil
}
