package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"WASH_FIRESTORE_PROJECT_ID": "wash-test",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("expected default read timeout, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.PubSub.ProjectID != "wash-test" {
		t.Fatalf("expected pubsub project to inherit firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Firebase.ProjectID != "wash-test" {
		t.Fatalf("expected firebase project to inherit firestore project, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.PubSub.OrderEventsSubID != "order-events-sub" {
		t.Fatalf("expected default subscription id, got %s", cfg.PubSub.OrderEventsSubID)
	}
	if cfg.Loyalty.DefaultWashesRequired != 6 {
		t.Fatalf("expected default washes required 6, got %d", cfg.Loyalty.DefaultWashesRequired)
	}
	if cfg.Loyalty.DefaultReminderAfterDays != 7 {
		t.Fatalf("expected default reminder days 7, got %d", cfg.Loyalty.DefaultReminderAfterDays)
	}
}

func TestLoadEnvMapOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "WASH_SERVER_PORT=9000\nWASH_FIRESTORE_PROJECT_ID=from-file\n# comment\nexport WASH_SERVICE_NAME=\"file-svc\"\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(envFile),
		WithEnvMap(map[string]string{
			"WASH_SERVER_PORT": "9001",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9001" {
		t.Fatalf("expected env map to win, got port %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "from-file" {
		t.Fatalf("expected project from env file, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Loyalty.ServiceName != "file-svc" {
		t.Fatalf("expected quoted service name parsed, got %s", cfg.Loyalty.ServiceName)
	}
}

func TestLoadMissingProjectFails(t *testing.T) {
	_, err := Load(WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := validation.Fields()
	if len(fields) == 0 || fields[0] != "Firestore.ProjectID" {
		t.Fatalf("expected Firestore.ProjectID missing, got %v", fields)
	}
}

func TestLoadEmulatorHostSatisfiesProject(t *testing.T) {
	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"WASH_FIRESTORE_EMULATOR_HOST": "localhost:8787",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8787" {
		t.Fatalf("unexpected emulator host %s", cfg.Firestore.EmulatorHost)
	}
}
