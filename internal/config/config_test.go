package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	// A PORT exported by the CI runner would leak into the default checks.
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

func setenv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func containsErr(err error, want string) bool {
	return err != nil && strings.Contains(err.Error(), want)
}

func TestLoad_Defaults(t *testing.T) {
	cfg := MustLoad()

	if cfg.APIBasePath != "/api/v1" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("transport defaults: %+v", cfg)
	}
	if cfg.DB != (DBConfig{Driver: "sqlite", Path: "app.db"}) {
		t.Fatalf("db defaults: %+v", cfg.DB)
	}
	if cfg.Events.Backend != "none" || cfg.Auth.Required || cfg.RateBackend != "memory" {
		t.Fatalf("events=%+v auth=%+v rate=%q", cfg.Events, cfg.Auth, cfg.RateBackend)
	}
	if cfg.PromoCodeLength != 8 || cfg.SeedFile != "" || cfg.LogFile.Path != "" {
		t.Fatalf("app defaults: promo=%d seed=%q log=%+v", cfg.PromoCodeLength, cfg.SeedFile, cfg.LogFile)
	}
}

func TestLoad_ArcadeDeployment(t *testing.T) {
	setenv(t, map[string]string{
		"PORT":                        "8088",
		"READ_TIMEOUT":                "2s",
		"WRITE_TIMEOUT":               "3s",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "warning",
		"LOG_PRETTY":                  "yes",
		"LOG_FILE":                    "logs/arcade.log",
		"LOG_MAX_SIZE_MB":             "10",
		"API_BASE_PATH":               "api/v2/",
		"DB_DRIVER":                   "Postgres",
		"DB_DSN":                      "host=db user=arcade dbname=arcade",
		"SEED_FILE":                   "seed.yaml",
		"PROMO_CODE_LENGTH":           "10",
		"AUTH_REQUIRED":               "on",
		"AUTH_JWT_SECRET":             "s3cret",
		"AUTH_JWT_ISSUER":             "arcade",
		"EVENTS_BACKEND":              "REDIS",
		"REDIS_ADDR":                  "cache:6379",
		"REDIS_DB":                    "2",
		"RATE_BACKEND":                "redis",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "nope",
		"CORS_ALLOWED_ORIGINS":        " https://arcade.example , , http://localhost:5173 ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"IDEMPOTENCY_TTL":             "48h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
		"DEPLOYMENT_ENV":              "staging",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"server", cfg.Port == "8088" && cfg.ReadTimeout == 2*time.Second && cfg.WriteTimeout == 3*time.Second},
		{"gin mode normalized", cfg.GinMode == "release"},
		{"warning becomes warn", cfg.LogLevel == "warn" && cfg.LogPretty},
		{"log rotation keeps defaults", cfg.LogFile == LogFileConfig{Path: "logs/arcade.log", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28}},
		{"base path", cfg.APIBasePath == "/api/v2"},
		{"db", cfg.DB.Driver == "postgres" && cfg.DB.DSN == "host=db user=arcade dbname=arcade"},
		{"app", cfg.SeedFile == "seed.yaml" && cfg.PromoCodeLength == 10},
		{"auth", cfg.Auth.Required && cfg.Auth.JWTSecret == "s3cret" && cfg.Auth.Issuer == "arcade"},
		{"events", cfg.Events.Backend == "redis" && cfg.Events.RedisAddr == "cache:6379" && cfg.Events.RedisDB == 2 && cfg.Events.RedisChannel == "arcade.events"},
		{"rate falls back on garbage", cfg.RateBackend == "redis" && cfg.RateRPS == 5.0 && cfg.RateBurst == 10},
		{"cors", reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://arcade.example", "http://localhost:5173"})},
		{"hsts", cfg.Security.EnableHSTS && cfg.Security.HSTSMaxAge == 24*time.Hour},
		{"idempotency", cfg.IdempotencyTTL == 48*time.Hour},
		{"otel", cfg.OTEL.Enabled && cfg.OTEL.Endpoint == "otel:4317" && !cfg.OTEL.Insecure && cfg.OTEL.SampleRatio == 0.75 && cfg.OTEL.Environment == "staging"},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("%s: %+v", c.name, cfg)
		}
	}
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad accepted DB_DRIVER=oracle")
		}
	}()
	MustLoad()
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL must be one of"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"zero timeout", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"blank sqlite path", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER must be one of"},
		{"mysql without dsn", map[string]string{"DB_DRIVER": "mysql"}, "DB_DSN must be set for DB_DRIVER=mysql"},
		{"short promo codes", map[string]string{"PROMO_CODE_LENGTH": "4"}, "PROMO_CODE_LENGTH"},
		{"long promo codes", map[string]string{"PROMO_CODE_LENGTH": "13"}, "PROMO_CODE_LENGTH"},
		{"auth without secret", map[string]string{"AUTH_REQUIRED": "true"}, "AUTH_JWT_SECRET"},
		{"unknown events backend", map[string]string{"EVENTS_BACKEND": "kafka"}, "EVENTS_BACKEND must be one of"},
		{"amqp without exchange", map[string]string{"EVENTS_BACKEND": "amqp", "AMQP_EXCHANGE": " "}, "AMQP_EXCHANGE"},
		{"redis events without channel", map[string]string{"EVENTS_BACKEND": "redis", "REDIS_CHANNEL": " "}, "REDIS_CHANNEL"},
		{"log rotation", map[string]string{"LOG_FILE": "x.log", "LOG_MAX_SIZE_MB": "0"}, "LOG_MAX_SIZE_MB"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"zero burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"unknown rate backend", map[string]string{"RATE_BACKEND": "memcached"}, "RATE_BACKEND must be one of"},
		{"redis limiter without addr", map[string]string{"RATE_BACKEND": "redis", "REDIS_ADDR": " "}, "REDIS_ADDR must be set for RATE_BACKEND=redis"},
		{"negative hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"zero idempotency ttl", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("Load() error = %v; want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_ReportsAllProblems(t *testing.T) {
	t.Setenv("RATE_BURST", "0")
	t.Setenv("PROMO_CODE_LENGTH", "99")
	t.Setenv("DB_DRIVER", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() accepted an invalid config")
	}
	for _, want := range []string{"RATE_BURST", "PROMO_CODE_LENGTH", "DB_DSN"} {
		if !containsErr(err, want) {
			t.Errorf("error lacks %s: %v", want, err)
		}
	}
	if n := strings.Count(err.Error(), "\n") + 1; n != 3 {
		t.Fatalf("want 3 joined errors, got %d: %v", n, err)
	}
}

func TestGetters(t *testing.T) {
	setenv(t, map[string]string{
		"X_STR": "val", "X_EMPTY": "",
		"X_FLOAT": "3.14", "X_INT": "42", "X_DUR": "150ms", "X_BAD": "zzz",
	})

	if getenv("X_STR", "d") != "val" || getenv("X_EMPTY", "d") != "d" || getenv("X_UNSET", "d") != "d" {
		t.Error("getenv")
	}
	if getfloat("X_FLOAT", 0) != 3.14 || getfloat("X_BAD", 1.5) != 1.5 {
		t.Error("getfloat")
	}
	if getint("X_INT", 0) != 42 || getint("X_BAD", 7) != 7 {
		t.Error("getint")
	}
	if getdur("X_DUR", time.Second) != 150*time.Millisecond || getdur("X_BAD", 2*time.Second) != 2*time.Second {
		t.Error("getdur")
	}
}

func TestGetbool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "TRUE": true, " yes ": true, "Y": true, "On": true,
		"0": false, "False": false, " no ": false, "n": false, "OFF": false,
	}
	for raw, want := range cases {
		t.Setenv("X_FLAG", raw)
		if got := getbool("X_FLAG", !want); got != want {
			t.Errorf("getbool(%q) = %v; want %v", raw, got, want)
		}
	}
	for _, raw := range []string{"", "maybe"} {
		t.Setenv("X_FLAG", raw)
		if !getbool("X_FLAG", true) || getbool("X_FLAG", false) {
			t.Errorf("getbool(%q) must keep the default", raw)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	if splitCSV("") != nil {
		t.Fatal("empty input must give nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		" / ":      "/",
		"v1":       "/v1",
		"/v1/":     "/v1",
		"api/v1//": "/api/v1",
		"/api/v1":  "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
