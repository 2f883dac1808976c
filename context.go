package mom

import "context"

type contextKey int

const deliveryContextKey contextKey = iota

type deliveryContextData struct {
	signal       string
	subscriberID string
	messageID    string
}

// ContextSignal returns the GUID of the signal being delivered, if any
func ContextSignal(ctx context.Context) string {
	if d, ok := ctx.Value(deliveryContextKey).(*deliveryContextData); ok {
		return d.signal
	}
	return ""
}

// ContextSubscriberID returns the ID of the subscriber receiving the message
func ContextSubscriberID(ctx context.Context) string {
	if d, ok := ctx.Value(deliveryContextKey).(*deliveryContextData); ok {
		return d.subscriberID
	}
	return ""
}

// ContextMessageID returns the ID of the message being delivered
func ContextMessageID(ctx context.Context) string {
	if d, ok := ctx.Value(deliveryContextKey).(*deliveryContextData); ok {
		return d.messageID
	}
	return ""
}

func contextWithDelivery(ctx context.Context, signal, subscriberID, messageID string) context.Context {
	return context.WithValue(ctx, deliveryContextKey, &deliveryContextData{
		signal:       signal,
		subscriberID: subscriberID,
		messageID:    messageID,
	})
}
