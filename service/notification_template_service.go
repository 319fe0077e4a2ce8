package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/adelegard/TouchrServer/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TemplateTouch renders the push sent for a new touch.
const TemplateTouch = "touch"

type NotificationTemplateService struct {
	db *gorm.DB
}

func NewNotificationTemplateService(db *gorm.DB) *NotificationTemplateService {
	return &NotificationTemplateService{db: db}
}

// GetTemplate returns the active template of the given type.
func (s *NotificationTemplateService) GetTemplate(ctx context.Context, notifType string) (*model.NotificationTemplate, error) {
	var template model.NotificationTemplate
	err := s.db.WithContext(ctx).Where("type = ? AND is_active = ?", notifType, true).First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("template not found: %s", notifType)
		}
		return nil, persistence(err, "failed to lookup template")
	}
	return &template, nil
}

// RenderTemplate replaces every {{key}} with its value in a single pass.
// Substituted values are never rescanned for placeholders.
func (s *NotificationTemplateService) RenderTemplate(template string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		pairs = append(pairs, "{{"+key+"}}", vars[key])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// TemplateUpdate holds the editable fields of a template. Nil fields are left alone.
type TemplateUpdate struct {
	Title           *string `json:"title"`
	ContentTemplate *string `json:"content_template"`
	IsActive        *bool   `json:"is_active"`
	Description     *string `json:"description"`
}

func (s *NotificationTemplateService) UpdateTemplate(ctx context.Context, id uuid.UUID, upd TemplateUpdate) error {
	updates := map[string]interface{}{}
	if upd.Title != nil {
		updates["title"] = *upd.Title
	}
	if upd.ContentTemplate != nil {
		updates["content_template"] = *upd.ContentTemplate
	}
	if upd.IsActive != nil {
		updates["is_active"] = *upd.IsActive
	}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if len(updates) == 0 {
		return invalidInput("nothing to update")
	}

	result := s.db.WithContext(ctx).Model(&model.NotificationTemplate{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return persistence(result.Error, "failed to update template")
	}
	if result.RowsAffected == 0 {
		return notFound("template not found")
	}
	return nil
}

func (s *NotificationTemplateService) ListTemplates(ctx context.Context) ([]model.NotificationTemplate, error) {
	var templates []model.NotificationTemplate
	if err := s.db.WithContext(ctx).Order("type ASC").Find(&templates).Error; err != nil {
		return nil, persistence(err, "failed to list templates")
	}
	return templates, nil
}

// InitDefaultTemplates creates the built-in templates that do not exist yet.
func (s *NotificationTemplateService) InitDefaultTemplates(ctx context.Context) error {
	defaults := []model.NotificationTemplate{
		{
			Type:            TemplateTouch,
			Title:           "{{touch_type_name}}",
			ContentTemplate: "{{from_username}} {{text_notif}}",
			IsActive:        true,
			Description:     "push sent to the recipient of a touch",
		},
	}

	for _, template := range defaults {
		var existing model.NotificationTemplate
		err := s.db.WithContext(ctx).Where("type = ?", template.Type).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.db.WithContext(ctx).Create(&template).Error; err != nil {
				return fmt.Errorf("failed to create default template %s: %w", template.Type, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to check template %s: %w", template.Type, err)
		}
	}
	return nil
}
