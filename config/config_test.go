package config

import (
	"os"
	"testing"
	"time"

	"pricefuse/models"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `pricefuse:
  name: "TestApp"
  version: "1.0"
engine:
  asset: eth
  quote: usdt
composite:
  quorum_profile: strict
  outlier_threshold_bps: 50
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Pricefuse.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Pricefuse.Name)
	}
	if cfg.Engine.Asset != "ETH" {
		t.Errorf("expected asset normalised to ETH, got %s", cfg.Engine.Asset)
	}
	if cfg.Composite.QuorumProfile != "strict" {
		t.Errorf("unexpected quorum profile: %s", cfg.Composite.QuorumProfile)
	}
	if cfg.Composite.OutlierThresholdBps != 50 {
		t.Errorf("unexpected outlier threshold: %v", cfg.Composite.OutlierThresholdBps)
	}
	// unset sections keep their defaults
	if len(cfg.Venues) != 7 {
		t.Errorf("expected 7 default venues, got %d", len(cfg.Venues))
	}
	if cfg.Channels.TradeBuffer != 10000 {
		t.Errorf("unexpected default trade buffer: %d", cfg.Channels.TradeBuffer)
	}
	if cfg.Soak.SampleInterval != 15*time.Second {
		t.Errorf("unexpected default soak interval: %v", cfg.Soak.SampleInterval)
	}
}

func TestLoadConfigVenueOverride(t *testing.T) {
	path := writeTempConfig(t, `pricefuse:
  name: "TestApp"
  version: "1.0"
venues:
- id: binance
  market: spot
  enabled: true
- id: okx
  market: perp
  enabled: true
  stale_threshold: 45s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Venues) != 2 {
		t.Fatalf("expected 2 venues, got %d", len(cfg.Venues))
	}
	if cfg.Venues[1].EffectiveStaleThreshold() != 45*time.Second {
		t.Errorf("expected configured stale threshold 45s, got %v", cfg.Venues[1].EffectiveStaleThreshold())
	}
	if cfg.Venues[0].EffectiveStaleThreshold() != 10*time.Second {
		t.Errorf("expected binance default stale threshold 10s, got %v", cfg.Venues[0].EffectiveStaleThreshold())
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			"missing name",
			"pricefuse:\n  version: \"1.0\"\n",
		},
		{
			"bad quorum profile",
			"pricefuse:\n  name: x\n  version: \"1.0\"\ncomposite:\n  quorum_profile: lenient\n",
		},
		{
			"kucoin spot",
			"pricefuse:\n  name: x\n  version: \"1.0\"\nvenues:\n- id: kucoin\n  market: spot\n  enabled: true\n",
		},
		{
			"duplicate venue",
			"pricefuse:\n  name: x\n  version: \"1.0\"\nvenues:\n- id: okx\n  market: perp\n  enabled: true\n- id: okx\n  market: perp\n  enabled: true\n",
		},
		{
			"archive without s3",
			"pricefuse:\n  name: x\n  version: \"1.0\"\narchive:\n  enabled: true\n  flush_interval: 1m\n",
		},
	}
	for _, c := range cases {
		path := writeTempConfig(t, c.content)
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected validation error, got none", c.name)
		}
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	paths := map[string]string{EnvironmentProduction: "config/config.production.yml"}

	t.Setenv("APP_ENV", "producation")
	if got := resolveEnvSpecificPath("", "config/config.yml", paths); got != "config/config.production.yml" {
		t.Errorf("alias selection: got %s", got)
	}
	if got := resolveEnvSpecificPath("other.yml", "config/config.yml", paths); got != "other.yml" {
		t.Errorf("explicit path should win, got %s", got)
	}

	t.Setenv("APP_ENV", "")
	if got := resolveEnvSpecificPath("", "config/config.yml", paths); got != "config/config.yml" {
		t.Errorf("development should keep the default, got %s", got)
	}
}

func TestResolveConfigPathFallsBack(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	// No environment specific file exists here, so explicit and default
	// paths survive unchanged.
	if got := ResolveConfigPath("custom.yml"); got != "custom.yml" {
		t.Errorf("explicit path: got %s", got)
	}
	if got := ResolveConfigPath(""); got != DefaultConfigPath {
		t.Errorf("empty path: got %s", got)
	}
}

func TestS3CredentialsByEnvironment(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("S3_BUCKET", "")

	path := writeTempConfig(t, `pricefuse:
  name: x
  version: "1.0"
storage:
  s3:
    enabled: true
    bucket: test-bucket
    region: us-east-1
`)

	t.Setenv("APP_ENV", "development")
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("development should fall back to the credential chain: %v", err)
	}

	t.Setenv("APP_ENV", "production")
	if _, err := LoadConfig(path); err == nil {
		t.Error("production should require static credentials")
	}

	half := writeTempConfig(t, `pricefuse:
  name: x
  version: "1.0"
storage:
  s3:
    enabled: true
    bucket: test-bucket
    region: us-east-1
    access_key_id: AKIAEXAMPLE
`)
	t.Setenv("APP_ENV", "development")
	if _, err := LoadConfig(half); err == nil {
		t.Error("access key without secret should be rejected")
	}
}

func TestDefaultVenueSet(t *testing.T) {
	venues := DefaultVenues()
	if err := validateVenues(venues); err != nil {
		t.Fatalf("default venues failed validation: %v", err)
	}

	spot := EnabledVenues(venues, models.MarketSpot)
	perp := EnabledVenues(venues, models.MarketPerp)
	if len(spot) != 3 {
		t.Errorf("expected 3 spot venues, got %d", len(spot))
	}
	if len(perp) != 4 {
		t.Errorf("expected 4 perp venues, got %d", len(perp))
	}
	for _, v := range perp {
		if v.ID == "kucoin" && v.EffectiveStaleThreshold() != 30*time.Second {
			t.Errorf("expected kucoin stale threshold 30s, got %v", v.EffectiveStaleThreshold())
		}
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
