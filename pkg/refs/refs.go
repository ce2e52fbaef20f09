// Package refs generates the short public references shown to sellers and buyers.
package refs

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const (
	OrderPrefix  = "DO-"
	PayoutPrefix = "PO-"
)

// New returns prefix followed by 8 upper-case hex characters, e.g. DO-3F9A1C07.
func New(prefix string) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return prefix + strings.ToUpper(hex.EncodeToString(buf))
}

// Order returns a new order reference.
func Order() string { return New(OrderPrefix) }

// Payout returns a new payout reference.
func Payout() string { return New(PayoutPrefix) }
