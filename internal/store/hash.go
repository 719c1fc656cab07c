package store

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// DomainActivity prefixes activity log content hashes.
// Version suffix enables future algorithm migration.
const DomainActivity = "taskstore/activity/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash identifies an activity message. The severity is part of the
// identity, so the same text logged as an error and as a message yields
// two entries. Text is NFC-normalized first, so visually identical
// messages collapse into one entry.
func ContentHash(message string, isError bool) string {
	severity := byte('m')
	if isError {
		severity = 'e'
	}
	data := append([]byte{severity, 0x00}, norm.NFC.String(message)...)
	return hashWithDomain(DomainActivity, data)
}
