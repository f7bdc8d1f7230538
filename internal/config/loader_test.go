package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/fres-sudo/neuravia/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("NEURAVIA_ADDR", ":8080")
			_ = os.Setenv("NEURAVIA_QUEUE_SIZE", "64")
			_ = os.Setenv("NEURAVIA_DATABASE__DRIVER", "sqlite")
			_ = os.Setenv("NEURAVIA_DATABASE__DSN", "/tmp/ledger.db")
			_ = os.Setenv("NEURAVIA_WEIGHTS__GAME_PLAYED", "0.25")
			_ = os.Setenv("NEURAVIA_DIFFICULTY__MILD__ITEM_COUNT", "6")
			_ = os.Setenv("NEURAVIA_SESSION__TICK_MS", "250")
			_ = os.Setenv("NEURAVIA_COMPLETION__API_KEY", "sk-test")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults and nest on double underscores", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.Database.Driver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.Database.DSN, convey.ShouldEqual, "/tmp/ledger.db")
				convey.So(cfg.Weights["game_played"], convey.ShouldEqual, 0.25)
				convey.So(cfg.Weights["weekly_form"], convey.ShouldEqual, 0.6)
				convey.So(cfg.Difficulty.Mild.ItemCount, convey.ShouldEqual, 6)
				convey.So(cfg.Difficulty.Mild.TimerSeconds, convey.ShouldEqual, 5)
				convey.So(cfg.Session.TickMS, convey.ShouldEqual, 250)
				convey.So(cfg.Session.MaxLive, convey.ShouldEqual, 256)
				convey.So(cfg.Completion.APIKey, convey.ShouldEqual, "sk-test")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
worker_count: 2
weight_policy: reject
difficulty:
  severe:
    timer_seconds: 15
completion:
  base_url: http://llm.local/v1
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("NEURAVIA_CONFIG", tmpFile)
			_ = os.Setenv("NEURAVIA_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
				convey.So(cfg.WeightPolicy, convey.ShouldEqual, "reject")
				convey.So(cfg.Difficulty.Severe.TimerSeconds, convey.ShouldEqual, 15)
				convey.So(cfg.Difficulty.Severe.ItemCount, convey.ShouldEqual, 2)
				convey.So(cfg.Completion.BaseURL, convey.ShouldEqual, "http://llm.local/v1")
				convey.So(cfg.Completion.Model, convey.ShouldEqual, "gpt-4o-mini")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("NEURAVIA_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("NEURAVIA_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("NEURAVIA_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric variable is malformed", func() {
			_ = os.Setenv("NEURAVIA_QUEUE_SIZE", "lots")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should fail to unmarshal", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "neuravia-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}
