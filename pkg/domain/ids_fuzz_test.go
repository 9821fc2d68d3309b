package domain

import (
	"testing"

	dErrors "vitalis/pkg/domain-errors"
)

// Path parameters reach these parsers unfiltered.
func FuzzParseDeletionRequestID(f *testing.F) {
	for _, seed := range []string{
		"",
		"550e8400-e29b-41d4-a716-446655440000",
		"urn:uuid:550e8400-e29b-41d4-a716-446655440000",
		"00000000-0000-0000-0000-000000000000",
		"../review",
		"\x00\x01\x02",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		parsed, err := ParseDeletionRequestID(input)
		if err != nil {
			if !dErrors.HasCode(err, dErrors.CodeInvalidInput) {
				t.Fatalf("unexpected error code for %q: %v", input, err)
			}
			return
		}
		if parsed.IsNil() {
			t.Fatal("nil id accepted")
		}
		again, err := ParseDeletionRequestID(parsed.String())
		if err != nil || again != parsed {
			t.Fatalf("canonical form %q does not round-trip", parsed.String())
		}
	})
}
