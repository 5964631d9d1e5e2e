package portal

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeResponse_MatchesHandComputedMD5(t *testing.T) {
	identifier := byte(0x00)
	uamSecret := "sharedsecret"
	challenge := []byte{0xde, 0xad, 0xbe, 0xef}
	challengeHex := hex.EncodeToString(challenge)

	sum := md5.New()
	sum.Write([]byte{identifier})
	sum.Write([]byte(uamSecret))
	sum.Write(challenge)
	want := hex.EncodeToString(sum.Sum(nil))

	got, err := ChallengeResponse(identifier, uamSecret, challengeHex)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestChallengeResponse_DifferentChallengeDifferentResponse(t *testing.T) {
	a, err := ChallengeResponse(0x00, "secret", "aabbccdd")
	require.NoError(t, err)
	b, err := ChallengeResponse(0x00, "secret", "00112233")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestChallengeResponse_InvalidHexChallenge(t *testing.T) {
	_, err := ChallengeResponse(0x00, "secret", "not-hex")
	assert.Error(t, err)
}

func TestChallengeResponse_IsDeterministic(t *testing.T) {
	a, err := ChallengeResponse(0x01, "secret", "aabbccdd")
	require.NoError(t, err)
	b, err := ChallengeResponse(0x01, "secret", "aabbccdd")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
