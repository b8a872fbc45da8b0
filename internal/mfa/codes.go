package mfa

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyz234567"

var ErrInvalidCount = errors.New("backup code count must be positive")

// GenerateCodes returns n random codes of the form xxxx-xxxx.
func GenerateCodes(n int) ([]string, error) {
	if n <= 0 {
		return nil, ErrInvalidCount
	}

	size := big.NewInt(int64(len(codeAlphabet)))
	seen := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	for len(codes) < n {
		var b strings.Builder
		for i := 0; i < 8; i++ {
			if i == 4 {
				b.WriteByte('-')
			}
			idx, err := rand.Int(rand.Reader, size)
			if err != nil {
				return nil, fmt.Errorf("read random: %w", err)
			}
			b.WriteByte(codeAlphabet[idx.Int64()])
		}
		code := b.String()
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeCode lowercases user input, drops whitespace and restores the
// hyphen so "ABCD EFGH" and "abcdefgh" both match "abcd-efgh".
func NormalizeCode(input string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(input) {
		if strings.ContainsRune(codeAlphabet, r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) != 8 {
		return s
	}
	return s[:4] + "-" + s[4:]
}

// FormatExport renders the plaintext file a user downloads after generating codes.
func FormatExport(account string, codes []string, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("Dental Practice Portal - MFA backup codes\n")
	fmt.Fprintf(&b, "Account: %s\n", account)
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt.UTC().Format(time.RFC3339))
	b.WriteString("Each code can be used once. Keep this file somewhere safe.\n\n")
	for _, c := range codes {
		b.WriteString(c)
		b.WriteByte('\n')
	}
	return b.String()
}
