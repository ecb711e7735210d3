package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// FuzzParseUserID checks parsing never panics and accepted ids round-trip.
func FuzzParseUserID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseUserID(input)
		if err == nil {
			roundTrip, err2 := ParseUserID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseEventID checks that accepted references never contain the ticket
// delimiter or whitespace and are preserved verbatim.
func FuzzParseEventID(f *testing.F) {
	f.Add("100")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("1.2")
	f.Add(" 7")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseEventID(input)
		if err != nil {
			return
		}
		if string(id) != input {
			t.Errorf("reference rewritten: %q -> %q", input, id)
		}
		if strings.ContainsAny(input, ". \t\r\n") {
			t.Errorf("accepted reference with delimiter or whitespace: %q", input)
		}
	})
}
