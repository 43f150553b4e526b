package postgresadapter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

const tokenByteLength = 32

// RandomTokenIssuer mints the share token as 32 random bytes hex encoded.
// Guessing one is infeasible, which is what makes bare token URLs safe to
// hand to recipients outside the platform.
type RandomTokenIssuer struct{}

func (RandomTokenIssuer) MintToken(_ context.Context) (string, error) {
	b := make([]byte, tokenByteLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
