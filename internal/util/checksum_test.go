package util_test

import (
	"testing"

	"github.com/basecamp/federatedkv/internal/codec"
	"github.com/basecamp/federatedkv/internal/model"
	"github.com/basecamp/federatedkv/internal/util"
	"github.com/stretchr/testify/require"
)

// encodedFixture returns a real codec.Encode output — which already
// ends in an AppendChecksum trailer — so the checksum primitive is
// exercised against the same bytes the local store actually persists,
// not an arbitrary literal.
func encodedFixture(t *testing.T) []byte {
	t.Helper()
	encoded, err := codec.Encode(model.DataItem{
		Key:        42,
		SourceNode: "A",
		Timestamp:  1700000000000,
		DataType:   "user",
		Metadata:   map[string]string{"created_by": "A", "version": "1.0"},
		Value:      model.StringValue("String value for key 42 from A"),
	})
	require.NoError(t, err)
	return encoded
}

func TestAppendChecksumMatchesCodecOutput(t *testing.T) {
	encoded := encodedFixture(t)
	body := encoded[:len(encoded)-4]

	require.Equal(t, encoded, util.AppendChecksum(body))
}

func TestValidateAndStripChecksumRoundTrips(t *testing.T) {
	encoded := encodedFixture(t)

	body, valid := util.ValidateAndStripChecksum(encoded)
	require.True(t, valid)
	require.Equal(t, encoded[:len(encoded)-4], body)
}

func TestValidateAndStripChecksumRejectsCorruptedBody(t *testing.T) {
	encoded := encodedFixture(t)
	encoded[0] ^= 0xFF

	_, valid := util.ValidateAndStripChecksum(encoded)
	require.False(t, valid)
}

func TestValidateAndStripChecksumRejectsCorruptedTrailer(t *testing.T) {
	encoded := encodedFixture(t)
	encoded[len(encoded)-1] ^= 0xFF

	_, valid := util.ValidateAndStripChecksum(encoded)
	require.False(t, valid)
}

func TestValidateAndStripChecksumRejectsTruncatedInput(t *testing.T) {
	_, valid := util.ValidateAndStripChecksum([]byte{0x01, 0x02})
	require.False(t, valid)
}

func TestValidateAndStripChecksumAcceptsEmptyBody(t *testing.T) {
	withChecksum := util.AppendChecksum(nil)

	body, valid := util.ValidateAndStripChecksum(withChecksum)
	require.True(t, valid)
	require.Empty(t, body)
}
