package config

import (
	"github.com/tendant/identity-core/pkg/password"
	"github.com/tendant/identity-core/pkg/setting"
)

// PasswordConfig selects the password hashing algorithm
type PasswordConfig struct {
	Algorithm  string `env:"PASSWORD_ALGORITHM" env-default:"bcrypt" validate:"oneof=bcrypt argon2id"`
	BcryptCost int    `env:"PASSWORD_BCRYPT_COST" env-default:"10"`
}

// NewEncoder builds the configured password encoder
func (c PasswordConfig) NewEncoder() (*password.DelegatingEncoder, error) {
	return password.NewEncoder(password.Algorithm(c.Algorithm), c.BcryptCost)
}

// UserSettingConfig is the registration policy used until one is stored
type UserSettingConfig struct {
	AllowRegistration bool   `env:"REGISTRATION_ENABLED" env-default:"false"`
	DefaultRole       string `env:"REGISTRATION_DEFAULT_ROLE" env-default:"subscriber"`
}

// ToUserSetting converts the config to a user setting
func (c UserSettingConfig) ToUserSetting() *setting.UserSetting {
	allow := c.AllowRegistration
	return &setting.UserSetting{
		AllowRegistration: &allow,
		DefaultRole:       c.DefaultRole,
	}
}
