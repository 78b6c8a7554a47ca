// Package credential narrows the external credential daemon to a single
// polymorphic interface, with a caching layer in front of whichever
// concrete implementation the hub is wired to.
package credential

import "context"

// TokenFetcher fetches a bearer token for a (service, account) pair from
// whatever collaborator backs it. Absence of the backing daemon is not
// fatal at construction time; providers that need a token surface
// provider.AuthRequired lazily on the affected operation.
type TokenFetcher interface {
	FetchToken(ctx context.Context, service, account string) (string, error)
}
