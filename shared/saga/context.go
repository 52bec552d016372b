package saga

import "context"

type sagaIDKey struct{}

func withSagaID(ctx context.Context, sagaID string) context.Context {
	return context.WithValue(ctx, sagaIDKey{}, sagaID)
}

// IDFromContext returns the ID of the saga a step or compensation is running for.
// Steps use it as the correlation id of the requests they publish.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sagaIDKey{}).(string)
	return id, ok && id != ""
}
