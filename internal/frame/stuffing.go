// Package frame turns fixed-size sensor payloads into zero-free wire frames.
//
// A wire frame is the byte-stuffed payload followed by a single 0x00
// delimiter. Stuffing replaces every zero with a length code so the
// delimiter is unambiguous on a noisy serial or radio link:
//
//	code byte = run length + 1, followed by the run of non-zero bytes
//	code 0xFF = 254 bytes with no implied zero after them
//
// The payload carries its own CRC-8, computed before stuffing.
package frame

import "errors"

// Delimiter terminates every wire frame.
const Delimiter = 0x00

// maxRun is the longest run of non-zero bytes a single code byte can cover.
const maxRun = 254

var (
	// ErrEmptyFrame is returned when decoding zero bytes.
	ErrEmptyFrame = errors.New("frame: empty frame")
	// ErrUnexpectedZero is returned when a stuffed frame contains 0x00.
	ErrUnexpectedZero = errors.New("frame: unexpected zero byte")
	// ErrTruncated is returned when a code byte points past the end of the frame.
	ErrTruncated = errors.New("frame: truncated")
)

// MaxEncodedLen returns the largest possible stuffed length for n input bytes.
func MaxEncodedLen(n int) int {
	return n + (n+maxRun-1)/maxRun + 1
}

// Encode returns the stuffed form of src. The result never contains 0x00
// and does not include the delimiter.
func Encode(src []byte) []byte {
	return AppendEncode(make([]byte, 0, MaxEncodedLen(len(src))), src)
}

// AppendEncode appends the stuffed form of src to dst.
func AppendEncode(dst, src []byte) []byte {
	codeIdx := len(dst)
	dst = append(dst, 0)
	code := byte(1)

	for i, b := range src {
		if b == 0 {
			// The zero itself is implied by the code byte.
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
			continue
		}

		dst = append(dst, b)
		code++
		if code == 0xFF {
			// Full run: close it without an implied zero.
			dst[codeIdx] = code
			code = 1
			if i+1 == len(src) {
				return dst
			}
			codeIdx = len(dst)
			dst = append(dst, 0)
		}
	}

	dst[codeIdx] = code
	return dst
}

// AppendFrame appends a complete wire frame for payload to dst: the stuffed
// payload followed by the delimiter.
func AppendFrame(dst, payload []byte) []byte {
	dst = AppendEncode(dst, payload)
	return append(dst, Delimiter)
}

// Decode reverses Encode. src must not include the delimiter.
func Decode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, ErrEmptyFrame
	}

	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); {
		code := src[i]
		i++
		if code == 0 {
			return nil, ErrUnexpectedZero
		}

		end := i + int(code) - 1
		if end > len(src) {
			return nil, ErrTruncated
		}
		for _, b := range src[i:end] {
			if b == 0 {
				return nil, ErrUnexpectedZero
			}
		}
		out = append(out, src[i:end]...)
		i = end

		if code < 0xFF && i < len(src) {
			out = append(out, 0)
		}
	}
	return out, nil
}
