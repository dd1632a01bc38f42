package booking

import (
	"crypto/rand"
	"math/big"
)

// bookingCodeAlphabet excludes visually ambiguous characters (0/O,
// 1/I/L) so a human reading a printed booking_code aloud at a
// counter never has to guess.
const bookingCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// GenerateBookingCode returns a code of the form "BK-XXXXXXXX" using a
// uniform random source over bookingCodeAlphabet, per spec.md §3 /
// §4.D step 7.
func GenerateBookingCode() (string, error) {
	max := big.NewInt(int64(len(bookingCodeAlphabet)))
	code := make([]byte, 8)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = bookingCodeAlphabet[n.Int64()]
	}
	return "BK-" + string(code), nil
}
