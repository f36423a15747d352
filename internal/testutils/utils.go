package testutils

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
)

func RandomHash(t *testing.T) crypto.Hash {
	var hash crypto.Hash
	_, err := rand.Read(hash[:])
	require.NoError(t, err)
	return hash
}

func RandomAddress(t *testing.T) domain.Address {
	var addr domain.Address
	_, err := rand.Read(addr[:])
	require.NoError(t, err)
	return addr
}

func RandomBytes(t *testing.T, n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}
