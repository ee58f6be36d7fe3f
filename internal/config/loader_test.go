package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/pointsboard/internal/config"
)

func TestConfigLoader(t *testing.T) {
	dir := t.TempDir()

	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.Timezone, convey.ShouldEqual, "UTC")
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("POINTS_ADDR", ":8080")
			_ = os.Setenv("POINTS_REDIS_ADDR", "localhost:6379")
			_ = os.Setenv("POINTS_WORKER_COUNT", "16")
			_ = os.Setenv("POINTS_WEEK_START", "sunday")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.RedisAddr, convey.ShouldEqual, "localhost:6379")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
			convey.So(cfg.WeekStart, convey.ShouldEqual, "sunday")
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfig(dir, "file.yaml", `
addr: ":9090"
database_path: /var/lib/points/ledger.db
cache_ttl_seconds: 60
worker_count: 24
point_rules:
  POST_CREATED: 12
`)
			_ = os.Setenv("POINTS_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.DatabasePath, convey.ShouldEqual, "/var/lib/points/ledger.db")
			convey.So(cfg.CacheTTLSeconds, convey.ShouldEqual, 60)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 24)
			convey.So(cfg.PointRules["POST_CREATED"], convey.ShouldEqual, 12)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)

			convey.Convey("Then environment variables override file values", func() {
				_ = os.Setenv("POINTS_ADDR", ":8080")

				cfg, err := config.Load(ctx)

				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 24)
			})
		})

		convey.Convey("When the file is invalid YAML", func() {
			_ = os.Setenv("POINTS_CONFIG", writeConfig(dir, "bad.yaml", `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("POINTS_CONFIG", filepath.Join(dir, "missing.yaml"))

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When a value fails validation", func() {
			_ = os.Setenv("POINTS_CONFIG", writeConfig(dir, "empty.yaml", `addr: ""`))

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When a numeric variable does not parse", func() {
			_ = os.Setenv("POINTS_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func clearConfigEnvVars() {
	for _, name := range []string{
		"POINTS_CONFIG",
		"POINTS_ADDR",
		"POINTS_REDIS_ADDR",
		"POINTS_WORKER_COUNT",
		"POINTS_WEEK_START",
		"POINTS_QUEUE_SIZE",
	} {
		_ = os.Unsetenv(name)
	}
}

func writeConfig(dir, name, content string) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		panic(err)
	}
	return path
}
