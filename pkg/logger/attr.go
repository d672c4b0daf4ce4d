package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// SubscriptionID records the subscription identifier under "subscription_id".
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// ProductID records the Stripe product identifier under "product_id".
func ProductID(id string) slog.Attr {
	return slog.String("product_id", id)
}

// Feature records the gated feature name under "feature".
func Feature(name any) slog.Attr {
	return slog.Any("feature", name)
}

// Operation records the quota axis under "operation".
func Operation(op any) slog.Attr {
	return slog.Any("operation", op)
}

// EventType records the Stripe event type under "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// EventID records the Stripe event id under "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}
