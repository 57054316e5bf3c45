// Package config defines all configuration for the client.
// Config is loaded from a TOML file (goxtool.toml in the working directory
// or $HOME/.goxtool/) with every key overridable via GOXTOOL_* environment
// variables. All keys have defaults, so a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the TOML file structure.
type Config struct {
	Gox     GoxConfig     `mapstructure:"gox"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// GoxConfig is the [gox] section, everything the engine itself consumes.
//
//   - Currency: quote currency this instance trades against (one instance,
//     one currency).
//   - UseSSL: selects wss/https vs ws/http for every exchange endpoint.
//   - UsePlainOldWebsocket: true = plain websocket transport, false =
//     socket.io transport.
//   - LoadFulldepth / LoadHistory: pull the REST snapshots after each
//     (re)connect.
//   - SecretKey / SecretSecret: API credential pair. Both empty means
//     read-only mode: no authenticated calls are ever attempted.
//   - CandleTimeframe: width of one OHLCV bucket.
//   - Strategy: name of the registered strategy to attach, empty for the
//     built-in observer.
type GoxConfig struct {
	Currency             string        `mapstructure:"currency"`
	UseSSL               bool          `mapstructure:"use_ssl"`
	UsePlainOldWebsocket bool          `mapstructure:"use_plain_old_websocket"`
	LoadFulldepth        bool          `mapstructure:"load_fulldepth"`
	LoadHistory          bool          `mapstructure:"load_history"`
	SecretKey            string        `mapstructure:"secret_key"`
	SecretSecret         string        `mapstructure:"secret_secret"`
	CandleTimeframe      time.Duration `mapstructure:"candle_timeframe"`
	Strategy             string        `mapstructure:"strategy"`

	// Exchange hosts, overridable to point the client at a mirror.
	HTTPHost      string `mapstructure:"http_host"`
	WebsocketHost string `mapstructure:"websocket_host"`
	SocketIOHost  string `mapstructure:"socketio_host"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gox.currency", "USD")
	v.SetDefault("gox.use_ssl", true)
	v.SetDefault("gox.use_plain_old_websocket", true)
	v.SetDefault("gox.load_fulldepth", true)
	v.SetDefault("gox.load_history", true)
	v.SetDefault("gox.secret_key", "")
	v.SetDefault("gox.secret_secret", "")
	v.SetDefault("gox.candle_timeframe", 15*time.Minute)
	v.SetDefault("gox.strategy", "")
	v.SetDefault("gox.http_host", "mtgox.com")
	v.SetDefault("gox.websocket_host", "websocket.mtgox.com")
	v.SetDefault("gox.socketio_host", "socketio.mtgox.com")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.addr", "127.0.0.1:9100")
}

// Load reads config from a TOML file with env var overrides. path may be
// empty, in which case goxtool.toml is searched for in the working directory
// and $HOME/.goxtool/. Sensitive fields use env vars: GOXTOOL_SECRET_KEY
// and GOXTOOL_SECRET_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("goxtool")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.goxtool")
	}

	v.SetEnvPrefix("GOXTOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("GOXTOOL_SECRET_KEY"); key != "" {
		cfg.Gox.SecretKey = key
	}
	if secret := os.Getenv("GOXTOOL_SECRET_SECRET"); secret != "" {
		cfg.Gox.SecretSecret = secret
	}

	cfg.Gox.Currency = strings.ToUpper(strings.TrimSpace(cfg.Gox.Currency))

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	cur := c.Gox.Currency
	if len(cur) < 3 || len(cur) > 4 {
		return fmt.Errorf("gox.currency must be a 3-4 letter code, got %q", cur)
	}
	for _, r := range cur {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("gox.currency must be letters only, got %q", cur)
		}
	}
	if (c.Gox.SecretKey == "") != (c.Gox.SecretSecret == "") {
		return fmt.Errorf("gox.secret_key and gox.secret_secret must be set together")
	}
	if c.Gox.CandleTimeframe < time.Second {
		return fmt.Errorf("gox.candle_timeframe must be at least 1s, got %s", c.Gox.CandleTimeframe)
	}
	if c.Gox.HTTPHost == "" || c.Gox.WebsocketHost == "" || c.Gox.SocketIOHost == "" {
		return fmt.Errorf("exchange hosts must not be empty")
	}
	return nil
}
