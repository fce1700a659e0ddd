// Package config handles application configuration loading and validation.
//
// Configuration is loaded from config.yml, validated using struct tags, and
// the operational endpoints may be overridden from the environment.
package config
