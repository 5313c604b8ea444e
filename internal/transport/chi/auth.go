package chi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// StoreNameHeader names the vector store a request targets. An empty or
// absent header targets the default store.
const StoreNameHeader = "pinecone_name"

// bearerEnvSuffix is appended to the upper-cased store name to form the
// environment variable holding that store's bearer token.
const bearerEnvSuffix = "_BEARER"

type contextKey string

const storeNameKey contextKey = "store_name"

// StoreNameFromContext returns the store name the auth guard resolved
// for this request.
func StoreNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(storeNameKey).(string)
	return name
}

// AuthGuard validates per-store bearer tokens. Each store has its own
// token in the environment variable <STORE_NAME_UPPER>_BEARER.
type AuthGuard struct {
	defaultStore string
	lookupEnv    func(key string) (string, bool)
}

// NewAuthGuard creates a guard that resolves tokens from the process
// environment.
func NewAuthGuard(defaultStore string) *AuthGuard {
	return &AuthGuard{defaultStore: defaultStore, lookupEnv: os.LookupEnv}
}

// WithLookupEnv overrides the environment lookup. Used in tests.
func (g *AuthGuard) WithLookupEnv(fn func(key string) (string, bool)) *AuthGuard {
	g.lookupEnv = fn
	return g
}

// Middleware authenticates the request against the store named by the
// pinecone_name header and stores the resolved name in the context.
func (g *AuthGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storeName := r.Header.Get(StoreNameHeader)
		if storeName == "" {
			storeName = g.defaultStore
		}

		expected, ok := g.lookupEnv(bearerEnvVar(storeName))
		if !ok || expected == "" {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("No bearer token configured for store %q (set %s)", storeName, bearerEnvVar(storeName)))
			return
		}

		token := bearerToken(r)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			writeError(w, http.StatusUnauthorized, "Invalid or missing token")
			return
		}

		ctx := context.WithValue(r.Context(), storeNameKey, storeName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerEnvVar maps a store name to its token environment variable.
// Characters not valid in variable names become underscores.
func bearerEnvVar(storeName string) string {
	upper := strings.ToUpper(storeName)
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return mapped + bearerEnvSuffix
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(auth, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(bearerPrefix):])
}
