package adapter

import "context"

// TokenSource yields the bearer credential issued by the identity provider.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}
