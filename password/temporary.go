package password

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// Look-alike characters (0/O, 1/l/I) are left out so the password survives
// being read from an email and typed by hand.
const (
	upperAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerAlphabet  = "abcdefghijkmnpqrstuvwxyz"
	digitAlphabet  = "23456789"
	symbolAlphabet = "!@#$%^&*-_+="

	// MinTemporaryLength is the shortest temporary password GenerateTemporary produces.
	MinTemporaryLength = 12
)

var fullAlphabet = upperAlphabet + lowerAlphabet + digitAlphabet + symbolAlphabet

// GenerateTemporary returns a random password of the given length with at
// least one upper-case letter, lower-case letter, digit and symbol.
func GenerateTemporary(length int) (string, error) {
	if length < MinTemporaryLength {
		return "", errors.New("temporary password too short")
	}

	out := make([]byte, 0, length)
	for _, set := range []string{upperAlphabet, lowerAlphabet, digitAlphabet, symbolAlphabet} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(fullAlphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the guaranteed classes are not always first.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
