package auth

import (
	"context"
)

type contextKey string

const authContextKey contextKey = "courier_auth"

// AuthInfo holds authenticated identity information extracted from an API key.
type AuthInfo struct {
	KeyID          string
	OrganizationID string
	TeamID         string
	UserID         string
	AllowedModels  []string
	RPMLimit       *int
	TPMLimit       *int
}

// ModelAllowed reports whether the key may use a model known under any of
// the given names. An empty allow list admits every model.
func (a *AuthInfo) ModelAllowed(names ...string) bool {
	if len(a.AllowedModels) == 0 {
		return true
	}
	for _, allowed := range a.AllowedModels {
		for _, n := range names {
			if n != "" && allowed == n {
				return true
			}
		}
	}
	return false
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
