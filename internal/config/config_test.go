package config

import "testing"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "dev")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "jobs")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_FILE", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DB.Port != 5432 {
		t.Errorf("DB.Port = %d, want 5432", c.DB.Port)
	}
	if c.DB.SSLMode != "disable" {
		t.Errorf("DB.SSLMode = %q, want disable", c.DB.SSLMode)
	}
	if c.Broker.PageSize != 100 {
		t.Errorf("Broker.PageSize = %d, want 100", c.Broker.PageSize)
	}
	if c.Log.ConsoleLevel != "info" {
		t.Errorf("Log.ConsoleLevel = %q, want info", c.Log.ConsoleLevel)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENV", "staging")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for unknown ENV")
	}
}

func TestLoad_PageSizeBounds(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("BROKER_PAGE_SIZE", "5000")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for oversized page size")
	}
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_PORT", "not-a-number")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DB.Port != 5432 {
		t.Errorf("DB.Port = %d, want default 5432", c.DB.Port)
	}
}
