// Package config provides configuration loading and validation for voicegate.
// Configuration is YAML layered over built-in defaults, with secrets taken
// from the environment or an optional .env file.
package config
