// Package config loads engine configuration from EHROPS_* environment variables.
//
// The binaries call godotenv before LoadConfig so a local .env file can supply
// the same variables during development.
package config
