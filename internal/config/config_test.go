package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server:
  listen_addr: ":9000"
signal:
  secret: from-yaml
store:
  backend: badger
  path: ` + filepath.Join(dir, "signals") + `
events:
  kafka:
    brokers: [a:9092]
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ECHOKEY_SIGNAL_SECRET", "from-env")
	t.Setenv("ECHOKEY_KAFKA_BROKERS", "k1:9092, k2:9092")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Signal.Secret != "from-env" {
		t.Errorf("secret = %q", c.Signal.Secret)
	}
	if c.Server.ListenAddr != ":9000" || c.Store.Backend != "badger" {
		t.Errorf("yaml fields lost: %+v", c.Server)
	}
	if len(c.Events.Kafka.Brokers) != 2 || c.Events.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", c.Events.Kafka.Brokers)
	}
	if c.Signal.RefreshIntervalSeconds != 5 || c.Delivery.Channel != "log" || c.Audit.Backend != "memory" {
		t.Errorf("defaults not applied: %+v", c.Signal)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	if err := c.Validate(); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("want ErrMissingSecret, got %v", err)
	}
	c.Signal.Secret = "s"
	c.Store.Backend = "redis"
	if err := c.Validate(); err == nil {
		t.Error("redis without addr should fail")
	}
	c.Store.Backend = "etcd"
	if err := c.Validate(); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("# comment\nECHOKEY_TEST_A=one\nECHOKEY_TEST_B=\"two\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ECHOKEY_TEST_A", "preset")
	t.Setenv("ECHOKEY_TEST_B", "")
	os.Unsetenv("ECHOKEY_TEST_B")

	if err := LoadEnvFile(path, false); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("ECHOKEY_TEST_A"); got != "preset" {
		t.Errorf("A = %q, want preset", got)
	}
	if got := os.Getenv("ECHOKEY_TEST_B"); got != "two" {
		t.Errorf("B = %q", got)
	}
	if err := LoadEnvFile(path, true); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("ECHOKEY_TEST_A"); got != "one" {
		t.Errorf("override: A = %q", got)
	}
	if err := LoadEnvFile(filepath.Join(dir, "missing.env"), false); err != nil {
		t.Errorf("missing file: %v", err)
	}
}
