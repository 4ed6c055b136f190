package rate

import (
	"errors"
	"testing"
	"time"
)

func TestEntryRoundTripPreservesTimestamps(t *testing.T) {
	until := int64(1_700_000_000_123 + 1_800_000)
	cases := []*Entry{
		{Attempts: 1, FirstAttempt: 1_700_000_000_123, LastAttempt: 1_700_000_000_123},
		{Attempts: 3, FirstAttempt: 1_700_000_000_123, LastAttempt: 1_700_000_000_999, BlockedUntil: &until},
		{Attempts: 7, FirstAttempt: 9_007_199_254_740_000, LastAttempt: 9_007_199_254_740_993},
	}

	for _, want := range cases {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Attempts != want.Attempts || got.FirstAttempt != want.FirstAttempt || got.LastAttempt != want.LastAttempt {
			t.Fatalf("round trip mismatch: want %+v got %+v", want, got)
		}
		if (want.BlockedUntil == nil) != (got.BlockedUntil == nil) {
			t.Fatalf("blockedUntil presence mismatch: want %v got %v", want.BlockedUntil, got.BlockedUntil)
		}
		if want.BlockedUntil != nil && *want.BlockedUntil != *got.BlockedUntil {
			t.Fatalf("blockedUntil mismatch: want %d got %d", *want.BlockedUntil, *got.BlockedUntil)
		}
	}
}

func TestEncodeWireFormat(t *testing.T) {
	data, err := Encode(&Entry{Attempts: 2, FirstAttempt: 10, LastAttempt: 20})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := `{"attempts":2,"firstAttempt":10,"lastAttempt":20}`; string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}

	until := int64(30)
	data, _ = Encode(&Entry{Attempts: 2, FirstAttempt: 10, LastAttempt: 20, BlockedUntil: &until})
	if want := `{"attempts":2,"firstAttempt":10,"lastAttempt":20,"blockedUntil":30}`; string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
}

func TestDecodeRejectsCorruptValues(t *testing.T) {
	cases := map[string]string{
		"not json":         "{{",
		"zero attempts":    `{"attempts":0,"firstAttempt":1,"lastAttempt":1}`,
		"first after last": `{"attempts":1,"firstAttempt":5,"lastAttempt":1}`,
		"wrong type":       `{"attempts":"many"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(raw)); !errors.Is(err, ErrCorruptEntry) {
				t.Fatalf("expected ErrCorruptEntry, got %v", err)
			}
		})
	}
}

func TestExpiredRequiresWindowAndBlockToElapse(t *testing.T) {
	r := Rules{MaxAttempts: 3, WindowMs: 1000, BlockMs: 2000}
	e := &Entry{Attempts: 3, FirstAttempt: 0, LastAttempt: 500}

	if e.Expired(1000, r) {
		t.Fatal("entry must not expire exactly at window end")
	}
	if !e.Expired(1001, r) {
		t.Fatal("entry should expire after window end")
	}

	until := int64(2500)
	e.BlockedUntil = &until
	if e.Expired(2000, r) {
		t.Fatal("blocked entry must not expire")
	}
	if e.Expired(2500, r) {
		t.Fatal("entry must not expire exactly at block end")
	}
	if !e.Expired(2501, r) {
		t.Fatal("entry should expire after block end")
	}
	if got := e.ExpiresAt(r); got != 2501 {
		t.Fatalf("expected expiry at 2501, got %d", got)
	}
	if got := e.TTL(2000, r); got != 501*time.Millisecond {
		t.Fatalf("expected ttl 501ms, got %v", got)
	}
}
