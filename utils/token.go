package utils

import (
	"crypto/rand"
	"math/big"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SubscriptionTokenLength is the length of the tokens mailed out in
// confirmation links.
const SubscriptionTokenLength = 25

// GenerateSubscriptionToken returns a cryptographically random alphanumeric
// token. Tokens are stored verbatim and matched by equality, so they only need
// enough entropy to be unguessable.
func GenerateSubscriptionToken() (string, error) {
	buf := make([]byte, SubscriptionTokenLength)
	maxIdx := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, maxIdx)
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
