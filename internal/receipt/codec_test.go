package receipt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crosslane/crosslane/internal/crypto"
	"github.com/crosslane/crosslane/internal/domain"
)

func sampleReceipt() Receipt {
	var relayer, provider domain.Address
	relayer[0] = 0xaa
	provider[0] = 0xbb
	return Receipt{
		MessageHash:       crypto.HashData([]byte("message")),
		Relayer:           relayer,
		GasProvider:       provider,
		GasProviderDomain: 901,
		RelayCost:         domain.NewAmount(123_456),
		Nested: []crypto.Hash{
			crypto.HashData([]byte("nested-1")),
			crypto.HashData([]byte("nested-2")),
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	r := sampleReceipt()
	payload, err := r.Encode()
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, r.MessageHash, decoded.MessageHash)
	require.Equal(t, r.Relayer, decoded.Relayer)
	require.Equal(t, r.GasProvider, decoded.GasProvider)
	require.Equal(t, r.GasProviderDomain, decoded.GasProviderDomain)
	require.True(t, r.RelayCost.Equal(decoded.RelayCost))
	require.Equal(t, r.Nested, decoded.Nested)
}

func TestCodecRoundTripNoNested(t *testing.T) {
	r := sampleReceipt()
	r.Nested = nil
	payload, err := r.Encode()
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)
	require.Nil(t, decoded.Nested)
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	r := sampleReceipt()
	payload, err := r.Encode()
	require.NoError(t, err)

	payload[0] ^= 0xff
	_, err = Decode(payload)
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestDecodeRejectsTruncation(t *testing.T) {
	r := sampleReceipt()
	payload, err := r.Encode()
	require.NoError(t, err)

	// Short of the announced nested hashes.
	_, err = Decode(payload[:len(payload)-1])
	require.ErrorIs(t, err, ErrTruncatedPayload)

	// Short of the fixed header.
	_, err = Decode(payload[:40])
	require.ErrorIs(t, err, ErrTruncatedPayload)

	_, err = Decode(nil)
	require.ErrorIs(t, err, ErrTruncatedPayload)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	r := sampleReceipt()
	payload, err := r.Encode()
	require.NoError(t, err)

	_, err = Decode(append(payload, 0x00))
	require.ErrorIs(t, err, ErrTrailingBytes)
}
