package service

import (
	"context"
	"errors"
	"sync"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// TouchNotifier sends the push for a saved touch.
type TouchNotifier interface {
	NotifyTouch(ctx context.Context, touchID uuid.UUID) error
}

type TouchRequest struct {
	ToUserID    string `json:"toUserId"`
	TouchTypeID string `json:"touchTypeId"`
	StepIndex   *int   `json:"stepIndex"`
}

type BatchTouchRequest struct {
	ToUserIDs   []string `json:"toUserIds"`
	TouchTypeID string   `json:"touchTypeId"`
	StepIndex   *int     `json:"stepIndex"`
}

// TouchService records touches and kicks off their pushes.
type TouchService struct {
	db       *gorm.DB
	friends  *FriendshipService
	types    *TouchTypeService
	settings *SystemSettingsService
	notifier TouchNotifier

	inflight sync.WaitGroup
}

func NewTouchService(db *gorm.DB, friends *FriendshipService, types *TouchTypeService, settings *SystemSettingsService) *TouchService {
	return &TouchService{
		db:       db,
		friends:  friends,
		types:    types,
		settings: settings,
	}
}

// SetNotifier wires the push side effect. Without one touches are only stored.
func (s *TouchService) SetNotifier(n TouchNotifier) {
	s.notifier = n
}

// Wait blocks until every pending push has finished.
func (s *TouchService) Wait() {
	s.inflight.Wait()
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidInput("invalid %s: %q", field, raw)
	}
	return id, nil
}

func checkStepIndex(stepIndex *int) error {
	if stepIndex == nil {
		return invalidInput("stepIndex is required")
	}
	if *stepIndex < 0 {
		return invalidInput("stepIndex must not be negative")
	}
	return nil
}

func (s *TouchService) userExists(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return persistence(err, "failed to lookup user")
	}
	if count == 0 {
		return notFound("user not found with id: %s", id)
	}
	return nil
}

// Touch records a touch from fromID to one friend.
func (s *TouchService) Touch(ctx context.Context, fromID uuid.UUID, req TouchRequest) (*model.Touch, error) {
	toID, err := parseID(req.ToUserID, "toUserId")
	if err != nil {
		return nil, err
	}
	typeID, err := parseID(req.TouchTypeID, "touchTypeId")
	if err != nil {
		return nil, err
	}
	if err := checkStepIndex(req.StepIndex); err != nil {
		return nil, err
	}
	if toID == fromID {
		return nil, invalidInput("cannot touch yourself")
	}

	var (
		tt       *model.TouchType
		isFriend bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tt, err = s.types.GetVisible(gctx, fromID, typeID)
		return err
	})
	g.Go(func() error {
		return s.userExists(gctx, toID)
	})
	g.Go(func() error {
		var err error
		isFriend, err = s.friends.AreFriends(gctx, fromID, toID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !isFriend {
		return nil, notAuthorized("not authorized to touch this user")
	}

	if _, ok := ResolveStepByIndex(tt.Steps, *req.StepIndex); !ok {
		return nil, invalidInput("step index out of range")
	}

	touch := &model.Touch{
		FromUserID:  fromID,
		ToUserID:    toID,
		TouchTypeID: tt.ID,
		StepIndex:   *req.StepIndex,
	}
	if err := s.db.WithContext(ctx).Create(touch).Error; err != nil {
		return nil, persistence(err, "failed to save touch")
	}
	touchesRecorded.WithLabelValues("single").Inc()

	s.notify(ctx, touch.ID)
	return touch, nil
}

// TouchMany records the same touch for every recipient in one transaction.
func (s *TouchService) TouchMany(ctx context.Context, fromID uuid.UUID, req BatchTouchRequest) ([]model.Touch, error) {
	if len(req.ToUserIDs) == 0 {
		return nil, invalidInput("toUserIds is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(req.ToUserIDs))
	toIDs := make([]uuid.UUID, 0, len(req.ToUserIDs))
	for _, raw := range req.ToUserIDs {
		id, err := parseID(raw, "toUserId")
		if err != nil {
			return nil, err
		}
		if id == fromID {
			return nil, invalidInput("cannot touch yourself")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		toIDs = append(toIDs, id)
	}
	typeID, err := parseID(req.TouchTypeID, "touchTypeId")
	if err != nil {
		return nil, err
	}
	if err := checkStepIndex(req.StepIndex); err != nil {
		return nil, err
	}

	enforceFriends := s.settings != nil && s.settings.IsFeatureEnabled(SettingBatchFriendCheck)

	var (
		tt      *model.TouchType
		friends map[uuid.UUID]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tt, err = s.types.GetVisible(gctx, fromID, typeID)
		return err
	})
	g.Go(func() error {
		var count int64
		if err := s.db.WithContext(gctx).Model(&model.User{}).Where("id IN ?", toIDs).Count(&count).Error; err != nil {
			return persistence(err, "failed to lookup users")
		}
		if int(count) != len(toIDs) {
			return notFound("one or more users not found")
		}
		return nil
	})
	if enforceFriends {
		g.Go(func() error {
			var err error
			friends, err = s.friends.AllFriendIDs(gctx, fromID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if enforceFriends {
		for _, id := range toIDs {
			if _, ok := friends[id]; !ok {
				return nil, notAuthorized("not authorized to touch user %s", id)
			}
		}
	}

	if _, ok := ResolveStepByIndex(tt.Steps, *req.StepIndex); !ok {
		return nil, invalidInput("step index out of range")
	}

	touches := make([]model.Touch, len(toIDs))
	for i, id := range toIDs {
		touches[i] = model.Touch{
			FromUserID:  fromID,
			ToUserID:    id,
			TouchTypeID: tt.ID,
			StepIndex:   *req.StepIndex,
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&touches).Error
	})
	if err != nil {
		return nil, persistence(err, "failed to save touches")
	}
	touchesRecorded.WithLabelValues("batch").Add(float64(len(touches)))

	for _, touch := range touches {
		s.notify(ctx, touch.ID)
	}
	return touches, nil
}

// notify hands a touch to the notifier in the background. The request may
// finish before the push does.
func (s *TouchService) notify(ctx context.Context, touchID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.notifier.NotifyTouch(bg, touchID); err != nil {
			pushesDispatched.WithLabelValues("notifier", "error").Inc()
			utils.Log.WithFields(logrus.Fields{"touch_id": touchID, "error": err}).Error("failed to send push")
		}
	}()
}

// HideTouch sets the hide flags of a touch. Each side may only hide its own view.
func (s *TouchService) HideTouch(ctx context.Context, userID, touchID uuid.UUID, hideForUserTo, hideForUserFrom *bool) (*model.Touch, error) {
	if hideForUserTo == nil && hideForUserFrom == nil {
		return nil, invalidInput("hideForUserTo or hideForUserFrom is required")
	}

	var touch model.Touch
	if err := s.db.WithContext(ctx).First(&touch, "id = ?", touchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("touch not found with id: %s", touchID)
		}
		return nil, persistence(err, "failed to lookup touch")
	}

	updates := map[string]interface{}{}
	if hideForUserTo != nil {
		if touch.ToUserID != userID {
			return nil, notAuthorized("only the recipient can set hideForUserTo")
		}
		updates["hide_for_user_to"] = *hideForUserTo
		touch.HideForUserTo = *hideForUserTo
	}
	if hideForUserFrom != nil {
		if touch.FromUserID != userID {
			return nil, notAuthorized("only the sender can set hideForUserFrom")
		}
		updates["hide_for_user_from"] = *hideForUserFrom
		touch.HideForUserFrom = *hideForUserFrom
	}

	if err := s.db.WithContext(ctx).Model(&model.Touch{}).Where("id = ?", touchID).Updates(updates).Error; err != nil {
		return nil, persistence(err, "failed to update touch")
	}
	return &touch, nil
}

// RemoveTouchesWithPeer deletes every touch between userID and peerID.
func (s *TouchService) RemoveTouchesWithPeer(ctx context.Context, userID, peerID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", userID, peerID, peerID, userID).
		Delete(&model.Touch{})
	if result.Error != nil {
		return 0, persistence(result.Error, "failed to remove touches")
	}
	return result.RowsAffected, nil
}
