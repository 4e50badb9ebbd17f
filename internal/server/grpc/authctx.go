package grpcserver

import (
	"context"

	"github.com/and161185/sitetime/internal/token"
)

type ctxKey string

const principalKey ctxKey = "st.principal"

// WithPrincipal stores the authenticated principal in context.
func WithPrincipal(ctx context.Context, p token.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx fetches the principal from context.
func PrincipalFromCtx(ctx context.Context) (token.Principal, bool) {
	v := ctx.Value(principalKey)
	if v == nil {
		return token.Principal{}, false
	}
	p, ok := v.(token.Principal)
	return p, ok
}
