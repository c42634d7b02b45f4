package pdfinfo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInspectEmpty(t *testing.T) {
	_, err := Inspect(nil)
	require.Error(t, err)
}

func TestInspectGarbage(t *testing.T) {
	_, err := Inspect([]byte("this is definitely not a pdf"))
	require.Error(t, err)
}

func TestInspectTruncated(t *testing.T) {
	// A real header with nothing after it. The parser must fail cleanly
	// rather than panic.
	_, err := Inspect([]byte("%PDF-1.7\n"))
	require.Error(t, err)
}

func TestInspectBogusXref(t *testing.T) {
	body := "%PDF-1.4\n" + strings.Repeat("x", 64) + "\nstartxref\n999999\n%%EOF"
	_, err := Inspect([]byte(body))
	require.Error(t, err)
}
