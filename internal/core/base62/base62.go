// Package base62 implements standard base62 encoding with a 32-byte input
// block and a 43-byte output block. Used to render content hashes as short
// identifier-safe strings.
package base62

import (
	"errors"
	"fmt"
	"math"
)

const (
	base256BlockLen = 32
	base62BlockLen  = 43
	alphabetSize    = 62
)

// base62Log2 is the result of log2(62).
const base62Log2 = 5.954196310386875

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var alphabetVert = func() [256]byte {
	var table [256]byte
	for i := range table {
		table[i] = 0xff
	}
	for i := 0; i < len(alphabet); i++ {
		table[alphabet[i]] = byte(i)
	}
	return table
}()

func encodeLen(n int) int {
	if n == base256BlockLen {
		return base62BlockLen
	}
	nBlock := n / base256BlockLen
	out := nBlock * base62BlockLen
	if rem := n % base256BlockLen; rem > 0 {
		out += int(math.Ceil(float64(rem*8) / base62Log2))
	}
	return out
}

func decodeLen(n int) int {
	nBlock := n / base62BlockLen
	out := nBlock * base256BlockLen
	if rem := n % base62BlockLen; rem > 0 {
		out += int(math.Floor(float64(rem) * base62Log2 / 8))
	}
	return out
}

func isValidEncodingLength(n int) bool {
	f := func(x int) int {
		return int(math.Floor(float64(x) * base62Log2 / 8))
	}
	return f(n) != f(n-1)
}

// Encode returns the base62 encoding of src.
func Encode(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	rs := 0
	capacity := encodeLen(len(src))
	dst := make([]byte, capacity)
	for _, b := range src {
		c := 0
		carry := int(b)
		for j := capacity - 1; j >= 0; j-- {
			if carry == 0 && c >= rs {
				break
			}
			carry += 256 * int(dst[j])
			dst[j] = byte(carry % alphabetSize)
			carry /= alphabetSize
			c++
		}
		rs = c
	}
	out := make([]byte, capacity)
	for i, v := range dst {
		out[i] = alphabet[v]
	}
	return string(out)
}

// ErrBadInput is returned by Decode for input that is not valid base62.
var ErrBadInput = errors.New("base62: bad input")

// Decode returns the bytes represented by the base62 string src.
func Decode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	if !isValidEncodingLength(len(src)) {
		return nil, fmt.Errorf("%w: invalid input length %d", ErrBadInput, len(src))
	}
	rs := 0
	capacity := decodeLen(len(src))
	dst := make([]byte, capacity)
	for _, b := range src {
		c := 0
		carry := int(alphabetVert[b])
		if carry == 255 {
			return nil, fmt.Errorf("%w: byte %q", ErrBadInput, b)
		}
		for j := capacity - 1; j >= 0; j-- {
			if carry == 0 && c >= rs {
				break
			}
			carry += alphabetSize * int(dst[j])
			dst[j] = byte(carry % 256)
			carry /= 256
			c++
		}
		rs = c
	}
	return dst, nil
}
