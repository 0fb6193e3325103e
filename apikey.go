package adaptfn

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
)

// DefaultKeyQuery looks up the owner of an API key.
const DefaultKeyQuery = "SELECT owner FROM api_keys WHERE key = $1"

// KeyStore resolves API keys against a SQL table. It is used as layer state.
type KeyStore struct {
	DB *sql.DB
	// Query takes the key as its only argument and returns one owner column.
	// Defaults to DefaultKeyQuery.
	Query string
}

type apiKeyOwnerKey struct{}

// KeyOwner extracts the owner of the API key in header. A missing header is a
// 401, an unknown key a 401 and a failed lookup a 503.
func KeyOwner(header string) HeadExtractor[KeyStore, string] {
	required := Header[KeyStore](header)
	return func(ctx context.Context, p *Parts, store *KeyStore) (string, error) {
		key, err := required(ctx, p, store)
		if err != nil {
			return "", Reject(http.StatusUnauthorized, "missing_api_key", "Missing API key").WithCause(err)
		}
		query := store.Query
		if query == "" {
			query = DefaultKeyQuery
		}
		var owner string
		err = store.DB.QueryRowContext(ctx, query, key).Scan(&owner)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return "", Reject(http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
		case err != nil:
			return "", Reject(http.StatusServiceUnavailable, "key_store_unavailable", "Unable to verify API key").WithCause(err)
		}
		p.WithValue(apiKeyOwnerKey{}, owner)
		return owner, nil
	}
}

// RequireAPIKey only lets requests carrying a known API key in header through.
// The key's owner is available downstream through APIKeyOwner.
func RequireAPIKey(store *KeyStore, header string) Layer[KeyStore] {
	return FromFnWithSharedState(store, Func2(KeyOwner(header), Request[KeyStore](),
		func(_ context.Context, _ string, r *http.Request, next *Next) IntoResponse {
			return next.Run(r)
		}))
}

// APIKeyOwner returns the owner stored by RequireAPIKey.
func APIKeyOwner(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(apiKeyOwnerKey{}).(string)
	return owner, ok
}
