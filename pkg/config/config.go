package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
)

const (
	DBTypeFile      = "file"
	DBTypeMemory    = "memory"
	DBTypeFirestore = "firestore"

	DispatcherLog = "log"
	DispatcherFCM = "fcm"
)

type Config struct {
	GoEnv string

	DBType string
	DBPath string

	HttpHostPort string
	GrpcHostPort string
	MqttHostPort string

	DefaultRate  float64
	DefaultBurst int

	CorsAllowOrigins []string

	FirebaseProjectID   string
	FirebaseCredentials string
	Dispatcher          string
	DirectDispatch      bool
	ChangeFeedNotify    bool
}

// RateLimited reports whether per-device limiters should be installed at all.
func (c *Config) RateLimited() bool {
	return c.DefaultRate > 0
}

func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.CorsAllowOrigins {
		if o == "*" {
			return true
		}
	}
	return len(c.CorsAllowOrigins) == 0
}

// LoadDotEnv loads .env into the process environment. Missing files are reported to the caller,
// who decides whether that is fatal.
func LoadDotEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(common.EnvKeyGoEnv, "development")
	v.SetDefault(common.EnvKeyIOTDBType, DBTypeFile)
	v.SetDefault(common.EnvKeyIOTDbPath, "readings.db")
	v.SetDefault(common.EnvKeyIOTHttpHostPort, ":1080")
	v.SetDefault(common.EnvKeyIOTGrpcHostPort, "")
	v.SetDefault(common.EnvKeyIOTMqttHostPort, "")
	v.SetDefault(common.EnvKeyIOTDefaultRate, 0)
	v.SetDefault(common.EnvKeyIOTDefaultBurst, 0)
	v.SetDefault(common.EnvKeyIOTCorsAllowOrigins, "*")
	v.SetDefault(common.EnvKeyIOTFirebaseProjectID, "")
	v.SetDefault(common.EnvKeyIOTFirebaseCredentials, "")
	v.SetDefault(common.EnvKeyIOTDispatcher, DispatcherLog)
	v.SetDefault(common.EnvKeyIOTDirectDispatch, true)
	v.SetDefault(common.EnvKeyIOTChangeFeedNotify, true)

	return v
}

// Load reads the configuration from the environment, applying defaults for unset keys.
func Load() (*Config, error) {
	v := newViper()

	cfg := &Config{
		GoEnv:               v.GetString(common.EnvKeyGoEnv),
		DBType:              strings.TrimSpace(v.GetString(common.EnvKeyIOTDBType)),
		DBPath:              strings.TrimSpace(v.GetString(common.EnvKeyIOTDbPath)),
		HttpHostPort:        strings.TrimSpace(v.GetString(common.EnvKeyIOTHttpHostPort)),
		GrpcHostPort:        strings.TrimSpace(v.GetString(common.EnvKeyIOTGrpcHostPort)),
		MqttHostPort:        strings.TrimSpace(v.GetString(common.EnvKeyIOTMqttHostPort)),
		FirebaseProjectID:   strings.TrimSpace(v.GetString(common.EnvKeyIOTFirebaseProjectID)),
		FirebaseCredentials: strings.TrimSpace(v.GetString(common.EnvKeyIOTFirebaseCredentials)),
		Dispatcher:          strings.TrimSpace(v.GetString(common.EnvKeyIOTDispatcher)),
		DirectDispatch:      v.GetBool(common.EnvKeyIOTDirectDispatch),
		ChangeFeedNotify:    v.GetBool(common.EnvKeyIOTChangeFeedNotify),
	}

	var err error
	if cfg.DefaultRate, err = cast.ToFloat64E(v.Get(common.EnvKeyIOTDefaultRate)); err != nil {
		return nil, fmt.Errorf("invalid %s, should be a float64 value: %w", common.EnvKeyIOTDefaultRate, err)
	}
	if cfg.DefaultBurst, err = cast.ToIntE(v.Get(common.EnvKeyIOTDefaultBurst)); err != nil {
		return nil, fmt.Errorf("invalid %s, should be an int value: %w", common.EnvKeyIOTDefaultBurst, err)
	}

	for _, origin := range strings.Split(v.GetString(common.EnvKeyIOTCorsAllowOrigins), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CorsAllowOrigins = append(cfg.CorsAllowOrigins, origin)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBType {
	case DBTypeFile, DBTypeMemory:
	case DBTypeFirestore:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("%s is required when %s=%s", common.EnvKeyIOTFirebaseProjectID, common.EnvKeyIOTDBType, DBTypeFirestore)
		}
	default:
		return fmt.Errorf("unknown %s: %q", common.EnvKeyIOTDBType, c.DBType)
	}

	switch c.Dispatcher {
	case DispatcherLog:
	case DispatcherFCM:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("%s is required when %s=%s", common.EnvKeyIOTFirebaseProjectID, common.EnvKeyIOTDispatcher, DispatcherFCM)
		}
	default:
		return fmt.Errorf("unknown %s: %q", common.EnvKeyIOTDispatcher, c.Dispatcher)
	}

	if c.DefaultBurst < 0 {
		return fmt.Errorf("%s can not be negative", common.EnvKeyIOTDefaultBurst)
	}

	return nil
}
