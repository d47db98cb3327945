package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Port != 8080 || c.Database.Driver != "sqlite" || c.Cache.Size != 256 {
		t.Errorf("defaults = %+v", c)
	}
	if c.AnalyzeTimeout() != 60*time.Second || c.DetailTimeout() != 30*time.Second {
		t.Errorf("timeouts = %v %v", c.AnalyzeTimeout(), c.DetailTimeout())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 7000
upstream:
  base_url: http://stats.internal:5000
database:
  driver: postgres
  port: 5432
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Server.Port != 7000 || c.Upstream.BaseURL != "http://stats.internal:5000" || c.Database.Driver != "postgres" {
		t.Errorf("file values = %+v", c)
	}

	t.Setenv(ServiceURLEnv, "http://override:5000")
	t.Setenv("ANALYTICS_SERVER_PORT", "9090")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	c, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Upstream.BaseURL != "http://override:5000" || c.Server.Port != 9090 || c.AI.APIKey != "sk-test" {
		t.Errorf("env overrides = %s %d %q", c.Upstream.BaseURL, c.Server.Port, c.AI.APIKey)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [port"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	c := Default()
	c.Upstream.BaseURL = "http://saved:5000"
	if err := Save(c, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Upstream.BaseURL != "http://saved:5000" || loaded.Minio.BucketName != "analytics-artifacts" {
		t.Errorf("loaded = %+v", loaded.Upstream)
	}
}

func TestDSNs(t *testing.T) {
	c := Default()
	c.Database.User, c.Database.Password, c.Database.Name = "u", "p", "db"
	if got := c.MySQLDSN(); got != "u:p@tcp(localhost:3306)/db?parseTime=true&charset=utf8mb4&loc=UTC" {
		t.Errorf("MySQLDSN = %s", got)
	}
	if got := c.PostgresDSN(); got != "host=localhost port=3306 user=u password=p dbname=db sslmode=disable" {
		t.Errorf("PostgresDSN = %s", got)
	}
}
