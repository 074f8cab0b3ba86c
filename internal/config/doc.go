// Package config loads the process configuration: an optional .env file,
// an optional YAML file, then environment variable overrides.
//
// Recognised variables: APP_ENV, PORT, BASE_URL, DATABASE_URL,
// DATABASE_DRIVER, REDIS_URL, REDIS_HOST, REDIS_PORT, REDIS_PASSWORD,
// REDIS_DB, JWT_SECRET, MAIL_PROVIDER, MAIL_HOST, MAIL_PORT, MAIL_USER,
// MAIL_PASS, MAIL_FROM, SENDGRID_API_KEY, ALLOWED_ORIGINS and
// ADMIN_NOTIFY_EMAILS.
package config
