package codes

import (
	"crypto/rand"
	"math/big"
)

// codeAlphabet leaves out visually confusable characters (0/O, 1/I) so codes
// survive being read aloud or retyped from paper.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode draws a code of the given length from the unambiguous
// alphabet using a cryptographically strong source.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
