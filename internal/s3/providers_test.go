package s3

import "testing"

func TestGetProviderConfig_KnownProvider(t *testing.T) {
	cfg, err := GetProviderConfig("aws")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultRegion != "us-east-1" {
		t.Errorf("got default region %q, want us-east-1", cfg.DefaultRegion)
	}
}

func TestGetProviderConfig_UnknownProvider(t *testing.T) {
	if _, err := GetProviderConfig("not-a-real-provider"); err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}

func TestValidateProviderConfig_FillsDefaults(t *testing.T) {
	endpoint, region, err := ValidateProviderConfig("", "minio", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpoint == "" {
		t.Error("expected a default endpoint to be filled in")
	}
	if region != "us-east-1" {
		t.Errorf("got region %q, want us-east-1", region)
	}
}

func TestValidateProviderConfig_EndpointTemplate(t *testing.T) {
	endpoint, _, err := ValidateProviderConfig("", "digitalocean", "fra1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://fra1.digitaloceanspaces.com"
	if endpoint != want {
		t.Errorf("got endpoint %q, want %q", endpoint, want)
	}
}
