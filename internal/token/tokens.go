package token

import (
	"context"
	"fmt"
)

// Tokens attaches a static bearer token to every call.
type Tokens struct {
	Token string
	// Secure requires a TLS transport before the token is sent.
	Secure bool
}

func (t *Tokens) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	if t.Token == "" {
		return nil, nil
	}
	return map[string]string{"authorization": fmt.Sprintf("Bearer %s", t.Token)}, nil
}

func (t *Tokens) RequireTransportSecurity() bool {
	return t.Secure
}
