// Package config loads typed configuration structs from environment
// variables, with an optional .env file for local development.
//
// Each config struct declares its variables through `env` tags:
//
//	type StripeConfig struct {
//		SecretKey      string `env:"STRIPE_SECRET_KEY,required"`
//		WebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET,required"`
//	}
//
//	var cfg StripeConfig
//	config.MustLoad(&cfg)
package config
