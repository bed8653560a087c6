package utils

import (
	"crypto/rand"
	"math/big"
)

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateInviteCode returns n characters drawn from A-Z0-9 with crypto/rand.
func GenerateInviteCode(n int) (string, error) {
	if n <= 0 {
		n = 8
	}
	max := big.NewInt(int64(len(inviteAlphabet)))
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = inviteAlphabet[v.Int64()]
	}
	return string(out), nil
}
