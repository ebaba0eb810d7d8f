// Package config loads typed configuration structs from environment
// variables, with optional dotenv file support for local development.
//
// Struct fields are annotated with `env` tags understood by
// github.com/caarlos0/env; LoadEnv pulls .env files into the process
// environment first via github.com/joho/godotenv. Each configuration type is
// parsed once per process and cached, so packages can call Load on their own
// Config without coordinating.
package config
