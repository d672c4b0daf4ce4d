// Package logger builds the application's slog.Logger and provides typed
// attribute helpers for the identifiers that recur across billing logs
// (users, subscriptions, features, billing events).
package logger
