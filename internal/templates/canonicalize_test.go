package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize_ReplacesVolatileTokens(t *testing.T) {
	in := "Connection from 10.0.0.5 failed at 2024-01-02T15:04:05Z, retry 00A1F2"
	got := Canonicalize(in, 512)

	assert.NotContains(t, got, "10.0.0.5")
	assert.NotContains(t, got, "2024-01-02")
	assert.Contains(t, got, "<ipv4>")
	assert.Contains(t, got, "<timestamp>")
}

func TestCanonicalize_TruncatesToMaxLength(t *testing.T) {
	in := "a very long message that keeps going on and on and on"
	got := Canonicalize(in, 10)
	assert.LessOrEqual(t, len(got), 10)
}

func TestCanonicalize_ZeroMaxLengthDefaultsTo512(t *testing.T) {
	got := Canonicalize("short message", 0)
	assert.Equal(t, "short message", got)
}

func TestCanonicalize_CollapsesWhitespaceAndLowercases(t *testing.T) {
	got := Canonicalize("  Disk   USAGE   High  ", 512)
	assert.Equal(t, "disk usage high", got)
}

func TestFingerprint_StableAndScopedPerSystem(t *testing.T) {
	canonical := Canonicalize("disk usage high on <num>", 512)

	a := Fingerprint("system-a", canonical)
	b := Fingerprint("system-a", canonical)
	c := Fingerprint("system-b", canonical)

	assert.Equal(t, a, b, "same system + same pattern must hash identically")
	assert.NotEqual(t, a, c, "same pattern across different systems must not collide")
}
