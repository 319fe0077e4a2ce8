package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adelegard/TouchrServer/model"

	"gorm.io/gorm"
)

// Runtime feature flags.
const (
	SettingPushNotifications = "enable_push_notifications"
	SettingBatchFriendCheck  = "enforce_batch_friend_check"
	SettingUnusedTouchTypeGC = "enable_unused_touch_type_gc"
	settingValueTrue         = "true"
	settingValueFalse        = "false"
)

var defaultSettings = []model.SystemSettings{
	{SettingKey: SettingPushNotifications, SettingValue: settingValueTrue, Description: "send a push for every new touch"},
	{SettingKey: SettingBatchFriendCheck, SettingValue: settingValueFalse, Description: "require friendship with every recipient of a batch touch"},
	{SettingKey: SettingUnusedTouchTypeGC, SettingValue: settingValueTrue, Description: "let the scheduler delete touch types nobody has favorited"},
}

// SystemSettingsService caches the system_settings table in memory.
type SystemSettingsService struct {
	db              *gorm.DB
	settingsCache   map[string]string
	settingsCacheMu sync.RWMutex
}

func NewSystemSettingsService(db *gorm.DB) *SystemSettingsService {
	s := &SystemSettingsService{
		db:            db,
		settingsCache: make(map[string]string),
	}
	for _, d := range defaultSettings {
		s.settingsCache[d.SettingKey] = d.SettingValue
	}
	return s
}

// InitDefaultSettings inserts missing default rows and loads the cache.
func (s *SystemSettingsService) InitDefaultSettings(ctx context.Context) error {
	for _, d := range defaultSettings {
		var existing model.SystemSettings
		err := s.db.WithContext(ctx).Where("setting_key = ?", d.SettingKey).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			setting := d
			if err := s.db.WithContext(ctx).Create(&setting).Error; err != nil {
				return fmt.Errorf("failed to create default setting %s: %w", d.SettingKey, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to check setting %s: %w", d.SettingKey, err)
		}
	}
	return s.LoadSettings(ctx)
}

// LoadSettings refreshes the cache from the database.
func (s *SystemSettingsService) LoadSettings(ctx context.Context) error {
	var settings []model.SystemSettings
	if err := s.db.WithContext(ctx).Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load system settings: %w", err)
	}

	s.settingsCacheMu.Lock()
	defer s.settingsCacheMu.Unlock()
	for _, setting := range settings {
		s.settingsCache[setting.SettingKey] = setting.SettingValue
	}
	return nil
}

func (s *SystemSettingsService) GetSetting(key string) (string, bool) {
	s.settingsCacheMu.RLock()
	defer s.settingsCacheMu.RUnlock()

	value, exists := s.settingsCache[key]
	return value, exists
}

func (s *SystemSettingsService) IsFeatureEnabled(featureKey string) bool {
	value, exists := s.GetSetting(featureKey)
	return exists && value == settingValueTrue
}

// UpdateSetting writes a boolean flag to the database and the cache.
func (s *SystemSettingsService) UpdateSetting(ctx context.Context, key, value string) error {
	if value != settingValueTrue && value != settingValueFalse {
		return invalidInput("value must be 'true' or 'false'")
	}

	result := s.db.WithContext(ctx).Model(&model.SystemSettings{}).
		Where("setting_key = ?", key).
		Update("setting_value", value)
	if result.Error != nil {
		return persistence(result.Error, "failed to update setting")
	}
	if result.RowsAffected == 0 {
		return notFound("setting key not found: %s", key)
	}

	s.settingsCacheMu.Lock()
	s.settingsCache[key] = value
	s.settingsCacheMu.Unlock()
	return nil
}

// GetAllSettings returns a copy of the cache.
func (s *SystemSettingsService) GetAllSettings() map[string]string {
	s.settingsCacheMu.RLock()
	defer s.settingsCacheMu.RUnlock()

	result := make(map[string]string, len(s.settingsCache))
	for k, v := range s.settingsCache {
		result[k] = v
	}
	return result
}
