// Package config loads the license service configuration.
//
// Values are resolved in three layers, later layers winning:
//
//	1. Default()
//	2. a YAML file (SGPT_CONFIG_FILE, or config.yaml / configs/config.yaml)
//	3. SGPT_* environment variables
//
// Environment variable names follow the struct layout, for example:
//
//	SGPT_SERVER_PORT=3000
//	SGPT_SECURITY_ADMIN_KEY=change-me
//	SGPT_STORAGE_BACKEND=redis
//	SGPT_STORAGE_REDIS_URL=redis://localhost:6379/0
//	SGPT_PRODUCT_SEED_DEMO=true
//	SGPT_NOTIFY_TELEGRAM_TOKEN=123:abc
//
// Durations use Go syntax ("15s", "87600h").
package config
