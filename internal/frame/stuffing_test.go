package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nonZeroRun returns n bytes cycling through 0x01..0xFF.
func nonZeroRun(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i%255) + 1
	}
	return b
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestEncodeVectors(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"empty", []byte{}, []byte{0x01}},
		{"single zero", []byte{0x00}, []byte{0x01, 0x01}},
		{"two zeros", []byte{0x00, 0x00}, []byte{0x01, 0x01, 0x01}},
		{"zero in middle", []byte{0x11, 0x22, 0x00, 0x33}, []byte{0x03, 0x11, 0x22, 0x02, 0x33}},
		{"no zeros", []byte{0x11, 0x22, 0x33, 0x44}, []byte{0x05, 0x11, 0x22, 0x33, 0x44}},
		{"trailing zeros", []byte{0x11, 0x00, 0x00, 0x00}, []byte{0x02, 0x11, 0x01, 0x01, 0x01}},
		{"leading zero before full run", concat([]byte{0x00}, nonZeroRun(254)), concat([]byte{0x01, 0xFF}, nonZeroRun(254))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Encode(tc.in))
		})
	}
}

func TestEncodeRunOf254(t *testing.T) {
	in := nonZeroRun(254)
	got := Encode(in)

	// A full run at the end of input needs no trailing code byte.
	require.Len(t, got, 255)
	assert.Equal(t, byte(0xFF), got[0])
	assert.Equal(t, in, got[1:])
	assert.NotContains(t, got, byte(0))
}

func TestEncodeRunOf255(t *testing.T) {
	in := nonZeroRun(255)
	got := Encode(in)

	want := concat([]byte{0xFF}, in[:254], []byte{0x02, in[254]})
	assert.Equal(t, want, got)
}

func TestEncodeRunOf256(t *testing.T) {
	in := nonZeroRun(256)
	got := Encode(in)

	want := concat([]byte{0xFF}, in[:254], []byte{0x03}, in[254:])
	assert.Equal(t, want, got)
}

func TestEncodeRunOf254ThenZero(t *testing.T) {
	in := concat(nonZeroRun(254), []byte{0x00})
	got := Encode(in)

	want := concat([]byte{0xFF}, in[:254], []byte{0x01, 0x01})
	assert.Equal(t, want, got)

	decoded, err := Decode(got)
	require.NoError(t, err)
	assert.Equal(t, in, decoded)
}

func TestEncodeNeverEmitsZero(t *testing.T) {
	inputs := [][]byte{
		{},
		bytes.Repeat([]byte{0}, 600),
		nonZeroRun(253),
		nonZeroRun(254),
		nonZeroRun(255),
		nonZeroRun(256),
		nonZeroRun(1000),
		concat(nonZeroRun(254), []byte{0, 0}, nonZeroRun(300)),
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		b := make([]byte, rng.Intn(700))
		rng.Read(b)
		inputs = append(inputs, b)
	}

	for _, in := range inputs {
		got := Encode(in)
		assert.NotContains(t, got, byte(0), "input length %d", len(in))
		assert.LessOrEqual(t, len(got), MaxEncodedLen(len(in)), "input length %d", len(in))
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 300; i++ {
		in := make([]byte, rng.Intn(800))
		rng.Read(in)
		// Bias towards zeros so runs of every length show up.
		for j := range in {
			if rng.Intn(4) == 0 {
				in[j] = 0
			}
		}

		got, err := Decode(Encode(in))
		require.NoError(t, err)
		assert.Equal(t, in, got)
	}
}

func TestAppendEncodeKeepsPrefix(t *testing.T) {
	dst := []byte{0xAA, 0xBB}
	got := AppendEncode(dst, []byte{0x00, 0x01})
	assert.Equal(t, []byte{0xAA, 0xBB, 0x01, 0x02, 0x01}, got)
}

func TestAppendFrameDelimited(t *testing.T) {
	payload := []byte{0x01, 0x00, 0x02, 0x00}
	got := AppendFrame(nil, payload)

	require.NotEmpty(t, got)
	assert.Equal(t, byte(Delimiter), got[len(got)-1])
	assert.Equal(t, len(got)-1, bytes.IndexByte(got, 0), "delimiter must be the only zero")

	decoded, err := Decode(got[:len(got)-1])
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestMaxEncodedLen(t *testing.T) {
	assert.Equal(t, 1, MaxEncodedLen(0))
	assert.Equal(t, 3, MaxEncodedLen(1))
	assert.Equal(t, 34, MaxEncodedLen(BasicSize))
	assert.Equal(t, 50, MaxEncodedLen(ExtendedSize))
	assert.Equal(t, 256, MaxEncodedLen(254))
	assert.Equal(t, 258, MaxEncodedLen(255))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = Decode([]byte{0x03, 0x11, 0x00})
	assert.ErrorIs(t, err, ErrUnexpectedZero)

	_, err = Decode([]byte{0x00})
	assert.ErrorIs(t, err, ErrUnexpectedZero)

	_, err = Decode([]byte{0x05, 0x11, 0x22})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeSingleCode(t *testing.T) {
	got, err := Decode([]byte{0x01})
	require.NoError(t, err)
	assert.Empty(t, got)
}
