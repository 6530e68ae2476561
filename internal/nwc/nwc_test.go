package nwc

import (
	"testing"
)

const (
	testPubkey = "b889ff5b1513b641e2a139f661a661364979c5beee91842f8f0ef42ab558e9d4"
	testSecret = "71a8c14c1407c113601079c4302dab36460f0ccd0ad506f1f2dc73b5100e4f3c"
)

func TestParseURI(t *testing.T) {
	uri := "nostr+walletconnect://" + testPubkey +
		"?relay=wss%3A%2F%2Frelay.example.com&secret=" + testSecret + "&lud16=alice%40example.com"
	cfg, err := ParseURI(uri)
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	if cfg.WalletPubkey != testPubkey {
		t.Errorf("WalletPubkey = %s", cfg.WalletPubkey)
	}
	if cfg.Secret != testSecret {
		t.Errorf("Secret = %s", cfg.Secret)
	}
	if len(cfg.Relays) != 1 || cfg.Relays[0] != "wss://relay.example.com" {
		t.Errorf("Relays = %v", cfg.Relays)
	}
	if cfg.Lud16 != "alice@example.com" {
		t.Errorf("Lud16 = %s", cfg.Lud16)
	}
}

func TestParseURIMultipleRelays(t *testing.T) {
	uri := "nostr+walletconnect://" + testPubkey +
		"?relay=wss%3A%2F%2Fone.example&relay=wss%3A%2F%2Ftwo.example&secret=" + testSecret
	cfg, err := ParseURI(uri)
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	if len(cfg.Relays) != 2 {
		t.Errorf("Relays = %v, want 2 entries", cfg.Relays)
	}
}

func TestParseURIRejectsBadInput(t *testing.T) {
	tests := []string{
		"",
		"https://example.com",
		"nostr+walletconnect://tooshort?relay=wss%3A%2F%2Fr.example&secret=" + testSecret,
		"nostr+walletconnect://" + testPubkey + "?relay=wss%3A%2F%2Fr.example", // no secret
		"nostr+walletconnect://" + testPubkey + "?secret=" + testSecret,       // no relay
	}
	for _, uri := range tests {
		if _, err := ParseURI(uri); err == nil {
			t.Errorf("ParseURI(%q) expected error", uri)
		}
	}
}

func TestHasURIPrefix(t *testing.T) {
	if !HasURIPrefix("  NOSTR+walletconnect://abc") {
		t.Errorf("expected prefix match")
	}
	if HasURIPrefix("1") || HasURIPrefix("walletconnect://") {
		t.Errorf("unexpected prefix match")
	}
}
