package setting

import (
	"context"
	"encoding/json"

	idmerrors "github.com/tendant/identity-core/pkg/errors"
	"github.com/tendant/identity-core/pkg/extension"
)

const (
	// KindSystemConfig is the kind of the record holding system settings
	KindSystemConfig = "SystemConfig"
	// SystemConfigName is the name of the single system settings record
	SystemConfigName = "system"
	// GroupUser is the key of the user setting group inside the system record
	GroupUser = "user"
)

// UserSetting controls self-service registration
type UserSetting struct {
	AllowRegistration *bool  `json:"allowRegistration,omitempty"`
	DefaultRole       string `json:"defaultRole,omitempty"`
}

// RegistrationAllowed reports whether self-service registration is open.
// Only an explicit false closes it; an unset flag leaves it open.
func (s *UserSetting) RegistrationAllowed() bool {
	return s.AllowRegistration == nil || *s.AllowRegistration
}

// Fetcher provides the current user setting. A nil setting with a nil error
// means the setting is not configured.
type Fetcher interface {
	UserSetting(ctx context.Context) (*UserSetting, error)
}

// StaticFetcher returns a fixed setting
type StaticFetcher struct {
	Setting *UserSetting
}

func (f StaticFetcher) UserSetting(context.Context) (*UserSetting, error) {
	if f.Setting == nil {
		return nil, nil
	}
	s := *f.Setting
	return &s, nil
}

// SystemConfig is the stored record of grouped system settings. Every group
// value is a JSON document.
type SystemConfig struct {
	Metadata extension.Metadata `json:"metadata"`
	Data     map[string]string  `json:"data,omitempty"`
}

func (c *SystemConfig) Kind() string                       { return KindSystemConfig }
func (c *SystemConfig) GetMetadata() *extension.Metadata   { return &c.Metadata }
func (c *SystemConfig) IndexedFields() map[string][]string { return nil }

// StoreFetcher reads the user setting from the system config record and
// falls back to another fetcher when the record or group is absent
type StoreFetcher struct {
	client   extension.Client
	fallback Fetcher
}

// NewStoreFetcher creates a store-backed fetcher. fallback may be nil.
func NewStoreFetcher(client extension.Client, fallback Fetcher) *StoreFetcher {
	if fallback == nil {
		fallback = StaticFetcher{}
	}
	return &StoreFetcher{client: client, fallback: fallback}
}

func (f *StoreFetcher) UserSetting(ctx context.Context) (*UserSetting, error) {
	config := &SystemConfig{}
	found, err := f.client.Fetch(ctx, SystemConfigName, config)
	if err != nil {
		return nil, err
	}
	raw, ok := config.Data[GroupUser]
	if !found || !ok || raw == "" {
		return f.fallback.UserSetting(ctx)
	}
	setting := &UserSetting{}
	if err := json.Unmarshal([]byte(raw), setting); err != nil {
		return nil, idmerrors.Wrapf(err, idmerrors.ErrCodeInvalidInput, "malformed %s setting group", GroupUser)
	}
	return setting, nil
}

// SaveUserSetting writes the user setting group, creating the system record when needed
func SaveUserSetting(ctx context.Context, client extension.Client, setting UserSetting) error {
	raw, err := json.Marshal(setting)
	if err != nil {
		return idmerrors.InternalWrap(err, "failed to encode user setting")
	}
	config := &SystemConfig{}
	found, err := client.Fetch(ctx, SystemConfigName, config)
	if err != nil {
		return err
	}
	if config.Data == nil {
		config.Data = make(map[string]string)
	}
	config.Data[GroupUser] = string(raw)
	if !found {
		config.Metadata = extension.Metadata{Name: SystemConfigName}
		return client.Create(ctx, config)
	}
	return client.Update(ctx, config)
}
