// Package config loads CellGen settings.
//
// Configuration is loaded with the following precedence (highest to lowest):
//  1. Environment variables (CELLGEN_*, GEMINI_API_KEY, OPENAI_API_KEY, DEEPSEEK_API_KEY)
//  2. A .env file in the working directory, or the file named by CELLGEN_ENV_FILE
//  3. A JSON or YAML config file (~/.config/cellgen/config.{yaml,yml,json}, then /etc/cellgen/)
//  4. Built-in defaults
//
// Keys found in the environment are kept in Config.APIKeys and take precedence
// over the per-user credential store when a provider is dispatched.
//
// Example usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := time.Duration(cfg.Timeout()) * time.Second
package config
