// Package config loads typed configuration structs from environment variables.
//
// Struct fields are described with github.com/caarlos0/env tags. A local .env file
// is read once through github.com/joho/godotenv so development setups need no
// exported variables. Structs that implement Validator are checked right after
// parsing, which turns bad values into startup errors instead of runtime surprises.
package config
