package main

import "testing"

func TestSplitNonEmpty(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{"a,,b", []string{"a", "b"}},
		{",a,", []string{"a"}},
	}
	for _, tc := range cases {
		got := splitNonEmpty(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("splitNonEmpty(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("splitNonEmpty(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestParseResponseMode(t *testing.T) {
	if _, err := parseResponseMode("bogus"); err == nil {
		t.Fatal("expected error for unknown response mode")
	}
	for _, mode := range []string{"full", "chunked", "streamed"} {
		if _, err := parseResponseMode(mode); err != nil {
			t.Fatalf("parseResponseMode(%q): %v", mode, err)
		}
	}
}

func TestParseNotifyMode(t *testing.T) {
	if _, err := parseNotifyMode("bogus"); err == nil {
		t.Fatal("expected error for unknown notify mode")
	}
	for _, mode := range []string{"log", "progress", "silent"} {
		if _, err := parseNotifyMode(mode); err != nil {
			t.Fatalf("parseNotifyMode(%q): %v", mode, err)
		}
	}
}

func TestParseDispatchMode(t *testing.T) {
	if _, err := parseDispatchMode("bogus"); err == nil {
		t.Fatal("expected error for unknown dispatch mode")
	}
	for _, mode := range []string{"pertask", "pipelined"} {
		if _, err := parseDispatchMode(mode); err != nil {
			t.Fatalf("parseDispatchMode(%q): %v", mode, err)
		}
	}
}

func TestBuildEncryptor(t *testing.T) {
	enc, health, err := buildEncryptor("", "", "", "", nil)
	if err != nil || enc != nil || health != nil {
		t.Fatalf("empty cipher must disable encryption, got %v, %v, %v", enc, health, err)
	}

	if _, _, err := buildEncryptor("aes-256-gcm", "", "", "", nil); err == nil {
		t.Fatal("expected error when -cipher is set without -master-key-hex")
	}
	if _, _, err := buildEncryptor("aes-256-gcm", "too-short", "", "", nil); err == nil {
		t.Fatal("expected error for a non-hex master key")
	}
	if _, _, err := buildEncryptor("aes-256-gcm", "0123456789abcdef", "", "", nil); err == nil {
		t.Fatal("expected error for a master key shorter than 32 bytes")
	}

	key64 := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	enc, health, err = buildEncryptor("chacha20-poly1305", key64, "", "", nil)
	if err != nil {
		t.Fatalf("buildEncryptor: %v", err)
	}
	if enc == nil {
		t.Fatal("expected a configured encryptor")
	}
	if health != nil {
		t.Fatal("local path must not return a KMS health check")
	}

	if _, _, err := buildEncryptor("aes-256-gcm", "", "kmip.example:5696", "", nil); err == nil {
		t.Fatal("expected error when -kmip-endpoint is set without -kmip-key-id")
	}
	if _, _, err := buildEncryptor("aes-256-gcm", key64, "kmip.example:5696", "key-1", nil); err == nil {
		t.Fatal("expected -master-key-hex and -kmip-endpoint to be mutually exclusive")
	}
}

func TestBuildAudit(t *testing.T) {
	logger, err := buildAudit("")
	if err != nil || logger != nil {
		t.Fatalf("empty sink must disable the audit trail, got %v, %v", logger, err)
	}

	logger, err = buildAudit("stdout")
	if err != nil {
		t.Fatalf("buildAudit(stdout): %v", err)
	}
	if logger == nil {
		t.Fatal("expected a configured audit logger")
	}
	_ = logger.Close()
}
