package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/adelegard/TouchrServer/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// FavoriteService manages the ordered set of touch types a user keeps at hand.
type FavoriteService struct {
	db    *gorm.DB
	rdb   *redis.Client
	types *TouchTypeService
}

func NewFavoriteService(db *gorm.DB, rdb *redis.Client, types *TouchTypeService) *FavoriteService {
	return &FavoriteService{db: db, rdb: rdb, types: types}
}

func favoritesLockKey(userID uuid.UUID) string {
	return fmt.Sprintf("lock:favorites:%s", userID)
}

// List returns the favorites of userID in display order.
func (s *FavoriteService) List(ctx context.Context, userID uuid.UUID) ([]model.UserTouchType, error) {
	var favorites []model.UserTouchType
	err := s.db.WithContext(ctx).
		Preload("TouchType").
		Where("user_id = ?", userID).
		Order("sort_order ASC, created_at ASC").
		Find(&favorites).Error
	if err != nil {
		return nil, persistence(err, "failed to get user touch types")
	}
	return favorites, nil
}

// Add appends a touch type after the current last favorite. Orders start at 1.
func (s *FavoriteService) Add(ctx context.Context, userID, touchTypeID uuid.UUID) (*model.UserTouchType, error) {
	tt, err := s.types.find(ctx, touchTypeID)
	if err != nil {
		return nil, err
	}
	if !tt.IsVisibleTo(userID) {
		return nil, notFound("touchType not found with id: %s", touchTypeID)
	}

	var favorite *model.UserTouchType
	err = withLock(ctx, s.rdb, favoritesLockKey(userID), func() error {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.UserTouchType{}).
			Where("user_id = ? AND touch_type_id = ?", userID, touchTypeID).
			Count(&count).Error; err != nil {
			return persistence(err, "failed to lookup user touch type")
		}
		if count > 0 {
			return conflict("touch type already added")
		}

		var maxOrder *int
		if err := s.db.WithContext(ctx).Model(&model.UserTouchType{}).
			Where("user_id = ?", userID).
			Select("MAX(sort_order)").
			Scan(&maxOrder).Error; err != nil {
			return persistence(err, "failed to lookup user touch types")
		}
		order := 1
		if maxOrder != nil {
			order = *maxOrder + 1
		}

		favorite = &model.UserTouchType{UserID: userID, TouchTypeID: touchTypeID, Order: order}
		if err := s.db.WithContext(ctx).Create(favorite).Error; err != nil {
			if isDuplicate(err) {
				return conflict("touch type already added")
			}
			return persistence(err, "failed to add touch type")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	favorite.TouchType = tt
	return favorite, nil
}

// Remove drops one favorite.
func (s *FavoriteService) Remove(ctx context.Context, userID, touchTypeID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND touch_type_id = ?", userID, touchTypeID).
		Delete(&model.UserTouchType{})
	if result.Error != nil {
		return persistence(result.Error, "failed to remove touch type")
	}
	if result.RowsAffected == 0 {
		return notFound("user does not have touch type: %s", touchTypeID)
	}
	return nil
}

// Set replaces the whole favorite list. Orders are 0-based and follow ids.
// Unknown or invisible ids are skipped and repeated ids keep their first position.
func (s *FavoriteService) Set(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]model.UserTouchType, error) {
	if len(ids) == 0 {
		return nil, invalidInput("touchTypeIds is required")
	}

	var found []model.TouchType
	if err := s.db.WithContext(ctx).Scopes(visibleTo(userID)).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, persistence(err, "failed to get touch types")
	}
	usable := make(map[uuid.UUID]struct{}, len(found))
	for _, tt := range found {
		usable[tt.ID] = struct{}{}
	}

	favorites := make([]model.UserTouchType, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := usable[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		favorites = append(favorites, model.UserTouchType{
			UserID:      userID,
			TouchTypeID: id,
			Order:       len(favorites),
		})
	}

	err := withLock(ctx, s.rdb, favoritesLockKey(userID), func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("user_id = ?", userID).Delete(&model.UserTouchType{}).Error; err != nil {
				return err
			}
			if len(favorites) == 0 {
				return nil
			}
			return tx.Create(&favorites).Error
		})
	})
	if err != nil {
		return nil, persistence(err, "failed to set touch types")
	}
	return s.List(ctx, userID)
}

// RemoveAll clears the favorite list of userID.
func (s *FavoriteService) RemoveAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.UserTouchType{}).Error; err != nil {
		return persistence(err, "failed to remove touch types")
	}
	return nil
}

// isDuplicate reports whether err comes from the (user, touch type) unique index.
func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
