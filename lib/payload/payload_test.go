package payload

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	values := [][]byte{
		[]byte("hello"),
		[]byte(""),
		nil,
		{0, 1, 2, 0xff, 0xfe},
		bytes.Repeat([]byte("x"), 1<<16),
	}

	for _, value := range values {
		encoded := Encode(value)

		if err := Verify(encoded); err != nil {
			t.Errorf("Verify failed for valid payload of %d bytes: %v", len(value), err)
		}

		decoded, err := Decode(encoded)
		if err != nil {
			t.Errorf("Decode failed for valid payload: %v", err)
			continue
		}

		if !bytes.Equal(decoded, value) {
			t.Errorf("Round-trip mismatch: put %q, got %q", value, decoded)
		}
	}
}

func TestDecodeReturnsCopy(t *testing.T) {
	encoded := Encode([]byte("original"))

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decoded[0] = 'X'

	again, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed on second pass: %v", err)
	}
	if !bytes.Equal(again, []byte("original")) {
		t.Errorf("Decode must return a copy, got %q after caller mutation", again)
	}
}

func TestCorruptionDetected(t *testing.T) {
	encoded := Encode([]byte("some value worth protecting"))

	// flip one byte at every position in turn
	for i := range encoded {
		mutated := make([]byte, len(encoded))
		copy(mutated, encoded)
		mutated[i] ^= 0x01

		if err := Verify(mutated); err == nil {
			t.Errorf("Verify accepted payload with byte %d flipped", i)
		}
		if _, err := Decode(mutated); err == nil {
			t.Errorf("Decode accepted payload with byte %d flipped", i)
		}
	}
}

func TestTruncationDetected(t *testing.T) {
	encoded := Encode([]byte("truncate me"))

	for i := 0; i < len(encoded); i++ {
		if err := Verify(encoded[:i]); err == nil {
			t.Errorf("Verify accepted payload truncated to %d bytes", i)
		}
	}
}

func TestGarbageRejected(t *testing.T) {
	garbage := [][]byte{
		nil,
		{},
		{1, 2, 3},
		bytes.Repeat([]byte{0xaa}, 64),
	}

	for _, p := range garbage {
		if err := Verify(p); err == nil {
			t.Errorf("Verify accepted garbage payload of %d bytes", len(p))
		}
	}
}
