// Package config loads the identity core configuration from environment variables.
//
// Values are read with cleanenv from `env` struct tags and checked with
// validator. A .env file can be loaded first:
//
//	if err := config.LoadEnvFile(".env"); err != nil {
//		slog.Warn("Failed to load .env file", "error", err)
//	}
//	cfg, err := config.Load()
//
// # Environment Variables
//
//	IDM_STORE_TYPE            memory | file | postgres (default memory)
//	IDM_STORE_DATA_DIR        directory of the file store (default ./data)
//	IDM_PG_HOST, IDM_PG_PORT, IDM_PG_DATABASE, IDM_PG_USER, IDM_PG_PASSWORD, IDM_PG_SCHEMA
//	REGISTRATION_ENABLED      allow self-service sign up (default false)
//	REGISTRATION_DEFAULT_ROLE role granted on sign up (default subscriber)
//	PASSWORD_ALGORITHM        bcrypt | argon2id (default bcrypt)
//	PASSWORD_BCRYPT_COST      bcrypt cost (default 10)
//	EVENT_ASYNC               deliver events from a background worker (default true)
//	EVENT_QUEUE_SIZE          async event queue size (default 64)
//	EVENT_DRAIN_TIMEOUT       time allowed to flush events on shutdown (default 5s)
//	BOOTSTRAP_ROLES           comma-separated roles to seed (default admin,subscriber)
//	BOOTSTRAP_ADMIN_USERNAME  admin user created at startup when set
//	BOOTSTRAP_ADMIN_EMAIL, BOOTSTRAP_ADMIN_PASSWORD, BOOTSTRAP_ADMIN_ROLE
package config
