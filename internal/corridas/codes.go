package corridas

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet deliberately omits 0/O, 1/I/L and lowercase so a code
// survives being read over the phone or typed on a cracked screen.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

// newConfirmationCode draws a 6-character confirmation code from the
// unambiguous alphabet.
func newConfirmationCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate confirmation code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// newDistinctCodes produces count confirmation codes with no duplicates, so
// every stop on a corrida answers to exactly one code.
func newDistinctCodes(count int) ([]string, error) {
	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := newConfirmationCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}
