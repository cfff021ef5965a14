package courtcard

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// FormatSerial builds a human-legible card serial, e.g. CC-2026-00042-7f.
// The suffix is a checksum over the body so clerks can catch typos before
// hitting the verification endpoint.
func FormatSerial(year, seq int) string {
	body := fmt.Sprintf("CC-%d-%05d", year, seq)
	return body + "-" + serialChecksum(body)
}

// ValidSerial reports whether a serial's checksum matches its body.
func ValidSerial(serial string) bool {
	i := strings.LastIndex(serial, "-")
	if i <= 0 || i == len(serial)-1 {
		return false
	}
	body, suffix := serial[:i], serial[i+1:]
	if !strings.HasPrefix(body, "CC-") {
		return false
	}
	return serialChecksum(body) == suffix
}

func serialChecksum(body string) string {
	sum := sha256.Sum256([]byte(body))
	return fmt.Sprintf("%02x", sum[0])
}
