package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "giztalk", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" || cfg.Call.APIURL != "http://127.0.0.1:8080" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Database.BadgerDir != filepath.Join(filepath.Dir(path), "data") {
		t.Errorf("badger dir = %q", cfg.Database.BadgerDir)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  addr: ":9000"
openai:
  api_key: sk-file
credits:
  per_5000_won: 8000
recording:
  s3:
    bucket: calls
    endpoint: http://minio:9000
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" || cfg.OpenAI.APIKey != "sk-file" || cfg.Credits.Per5000Won != 8000 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Recording.S3 == nil || cfg.Recording.S3.Bucket != "calls" {
		t.Errorf("s3 = %+v", cfg.Recording.S3)
	}

	if err := os.WriteFile(path, []byte("server: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("broken yaml loaded")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{OpenAI: OpenAI{APIKey: "sk-file"}}
	env := map[string]string{
		"OPENAI_API_KEY":           "sk-env",
		"DATABASE_URL":             "postgres://u:p@db/giztalk",
		"TOSS_PAYMENTS_SECRET_KEY": "test_sk",
		"CREDITS_PER_5000_WON":     "12000",
		"PUBLIC_APP_URL":           "https://giztalk.example",
	}
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if cfg.OpenAI.APIKey != "sk-env" || cfg.Database.URL != env["DATABASE_URL"] ||
		cfg.Toss.SecretKey != "test_sk" || cfg.Credits.Per5000Won != 12000 || cfg.Server.AppURL != env["PUBLIC_APP_URL"] {
		t.Errorf("cfg = %+v", cfg)
	}

	env["CREDITS_PER_5000_WON"] = "lots"
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err == nil {
		t.Error("invalid rate accepted")
	}
}

func TestSetGetSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("openai.api_key", "sk-123"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("credits.per_5000_won", "15000"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("recording.s3.bucket", "calls"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set("openai.nope", "x"); err == nil {
		t.Error("unknown key accepted")
	}
	if cfg.OpenAI.APIKey != "sk-123" || cfg.Credits.Per5000Won != 15000 || cfg.Recording.S3 == nil || cfg.Recording.S3.Bucket != "calls" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if v, err := cfg.Get("credits.per_5000_won"); err != nil || v != "15000" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if _, err := cfg.Get("toss.secret_key"); err == nil {
		t.Error("unset key returned")
	}

	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.OpenAI.APIKey != "sk-123" || again.Recording.S3.Bucket != "calls" {
		t.Errorf("reloaded = %+v", again)
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{
		OpenAI:   OpenAI{APIKey: "sk-proj-abcdefghijkl"},
		Database: Database{URL: "postgres://giztalk:hunter2@db:5432/giztalk"},
	}
	r := cfg.Redacted()
	if r.OpenAI.APIKey != "sk-p****ijkl" {
		t.Errorf("api key = %q", r.OpenAI.APIKey)
	}
	if r.Database.URL != "postgres://giztalk:****@db:5432/giztalk" {
		t.Errorf("url = %q", r.Database.URL)
	}
	if cfg.OpenAI.APIKey != "sk-proj-abcdefghijkl" {
		t.Error("original modified")
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env = %v", err)
	}
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("GIZTALK_TEST_DOTENV=loaded\n"), 0o600)
	t.Setenv("GIZTALK_TEST_DOTENV", "")
	os.Unsetenv("GIZTALK_TEST_DOTENV")
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if v := os.Getenv("GIZTALK_TEST_DOTENV"); v != "loaded" {
		t.Errorf("env = %q", v)
	}
}
