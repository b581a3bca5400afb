package config

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"pkg.mon.icu/concord/internal/config/hook"
	"pkg.mon.icu/concord/model"
)

type Config struct {
	Gateway struct {
		Auth     string
		URL      string
		Guilds   []model.Snowflake
		Presence string
	}

	Rest struct {
		BaseURL string
	}

	Logging struct {
		Level zapcore.Level
	}
}

func Read() (*Config, error) {
	v := viper.New()
	configureEnv(v)
	configureLocation(v)
	configureDefaults(v)
	return readUnmarshalConfig(v)
}

func configureEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("conf")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

func configureLocation(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
}

func configureDefaults(v *viper.Viper) {
	v.SetDefault("gateway.url", "wss://gateway.discord.gg/?v=9&encoding=json&compress=zlib-stream")
	v.SetDefault("gateway.presence", "online")
	v.SetDefault("logging.level", "info")
}

func readUnmarshalConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	c := &Config{}
	if err := v.Unmarshal(c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		hook.Snowflake(), hook.Level(),
	))); err != nil {
		return nil, err
	}
	return c, nil
}
