package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

func GenerateCode(n int) (string, error) {
	// Make a slice of nBytes random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// OrderReference builds the customer facing order code, e.g. TKT-260301-9F3A1C.
func OrderReference(now time.Time) string {
	code, err := GenerateCode(3)
	if err != nil {
		code = strings.ToUpper(strconv.FormatInt(now.UnixNano()&0xffffff, 16))
	}
	return "TKT-" + now.UTC().Format("060102") + "-" + code
}
