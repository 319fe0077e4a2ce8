package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// BadgeIncrement tells the device to bump its badge by one.
const BadgeIncrement = "Increment"

// PushMessage is one push addressed to every device of a user.
type PushMessage struct {
	UserID        uuid.UUID            `json:"user_id"`
	TouchID       uuid.UUID            `json:"touch_id"`
	Title         string               `json:"title"`
	Alert         string               `json:"alert"`
	Badge         string               `json:"badge"`
	Installations []model.Installation `json:"installations,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// PushTransport delivers pushes to devices.
type PushTransport interface {
	Name() string
	Deliver(ctx context.Context, msg PushMessage) error
}

// PushService turns saved touches into pushes and keeps the in-app notification list.
type PushService struct {
	db          *gorm.DB
	templateSvc *NotificationTemplateService
	settings    *SystemSettingsService
	transports  []PushTransport
}

func NewPushService(db *gorm.DB, templateSvc *NotificationTemplateService, settings *SystemSettingsService) *PushService {
	return &PushService{
		db:          db,
		templateSvc: templateSvc,
		settings:    settings,
	}
}

// AddTransport registers a delivery channel. Every push goes through all of them.
func (s *PushService) AddTransport(t PushTransport) {
	s.transports = append(s.transports, t)
}

// pushMessageText is used when no active touch template exists.
func pushMessageText(fromUsername, textNotif string) string {
	return fromUsername + " " + textNotif
}

// NotifyTouch sends the push for a saved touch. Hidden touches are skipped.
func (s *PushService) NotifyTouch(ctx context.Context, touchID uuid.UUID) error {
	log := utils.Log.WithField("touch_id", touchID)

	if s.settings != nil && !s.settings.IsFeatureEnabled(SettingPushNotifications) {
		log.Debug("push notifications disabled, not sending")
		return nil
	}

	var touch model.Touch
	if err := s.db.WithContext(ctx).First(&touch, "id = ?", touchID).Error; err != nil {
		return fmt.Errorf("failed to load touch: %w", err)
	}
	if touch.HideForUserTo {
		log.Info("not sending push b/c touch hideForUserTo was hidden")
		return nil
	}
	if touch.HideForUserFrom {
		log.Info("not sending push b/c touch hideForUserFrom was hidden")
		return nil
	}

	var (
		touchType model.TouchType
		fromUser  model.User
		toUser    model.User
		devices   []model.Installation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.WithContext(gctx).First(&touchType, "id = ?", touch.TouchTypeID).Error; err != nil {
			return fmt.Errorf("touchType not found with id %s: %w", touch.TouchTypeID, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).First(&fromUser, "id = ?", touch.FromUserID).Error; err != nil {
			return fmt.Errorf("dont have userFrom: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).First(&toUser, "id = ?", touch.ToUserID).Error; err != nil {
			return fmt.Errorf("dont have userTo: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.db.WithContext(gctx).Where("user_id = ?", touch.ToUserID).Find(&devices).Error; err != nil {
			return fmt.Errorf("failed to lookup installations: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	step, ok := ResolveStepByIndex(touchType.Steps, touch.StepIndex)
	if !ok {
		return fmt.Errorf("touch type %s has no step %d", touchType.ID, touch.StepIndex)
	}

	title, alert := s.render(ctx, touchType.Name, fromUser.Username, step.TextNotif)

	notification := &model.Notification{
		UserID:  toUser.ID,
		TouchID: &touch.ID,
		Title:   title,
		Content: alert,
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	msg := PushMessage{
		UserID:        toUser.ID,
		TouchID:       touch.ID,
		Title:         title,
		Alert:         alert,
		Badge:         BadgeIncrement,
		Installations: devices,
		CreatedAt:     notification.CreatedAt,
	}
	return s.dispatch(ctx, log, msg)
}

func (s *PushService) render(ctx context.Context, touchTypeName, fromUsername, textNotif string) (string, string) {
	fallback := pushMessageText(fromUsername, textNotif)
	if s.templateSvc == nil {
		return touchTypeName, fallback
	}

	template, err := s.templateSvc.GetTemplate(ctx, TemplateTouch)
	if err != nil {
		return touchTypeName, fallback
	}
	vars := map[string]string{
		"from_username":   fromUsername,
		"text_notif":      textNotif,
		"touch_type_name": touchTypeName,
	}
	return s.templateSvc.RenderTemplate(template.Title, vars), s.templateSvc.RenderTemplate(template.ContentTemplate, vars)
}

func (s *PushService) dispatch(ctx context.Context, log *logrus.Entry, msg PushMessage) error {
	var errs []error
	for _, t := range s.transports {
		if err := t.Deliver(ctx, msg); err != nil {
			pushesDispatched.WithLabelValues(t.Name(), "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		pushesDispatched.WithLabelValues(t.Name(), "sent").Inc()
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	log.WithFields(logrus.Fields{"user_id": msg.UserID, "devices": len(msg.Installations)}).Info("sent push")
	return nil
}

// GetNotifications returns one page of a user's notifications, newest first.
func (s *PushService) GetNotifications(ctx context.Context, userID uuid.UUID, page int, unreadOnly bool) ([]model.Notification, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var notifications []model.Notification
	if err := query.Order("created_at DESC").Scopes(utils.Paginate(page)).Find(&notifications).Error; err != nil {
		return nil, persistence(err, "failed to query notifications")
	}
	return notifications, nil
}

// UnreadCount is the badge value of a user.
func (s *PushService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, persistence(err, "failed to count notifications")
	}
	return count, nil
}

// MarkAllAsRead clears the badge.
func (s *PushService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		}).Error
	if err != nil {
		return persistence(err, "failed to mark notifications as read")
	}
	return nil
}

func (s *PushService) DeleteNotification(ctx context.Context, userID, notificationID uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&model.Notification{})
	if result.Error != nil {
		return persistence(result.Error, "failed to delete notification")
	}
	if result.RowsAffected == 0 {
		return notFound("notification not found")
	}
	return nil
}
