// coursegen/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	// APIBase is the HTTP base of the course-generation backend. The
	// websocket endpoint is derived from it (http -> ws, https -> wss).
	APIBase string `mapstructure:"API_BASE"`

	// Channel behaviour.
	KeepaliveInterval    time.Duration `mapstructure:"KEEPALIVE_INTERVAL"`
	ReconnectDelay       time.Duration `mapstructure:"RECONNECT_DELAY"`
	MaxReconnectAttempts uint64        `mapstructure:"MAX_RECONNECT_ATTEMPTS"`
	HandshakeTimeout     time.Duration `mapstructure:"HANDSHAKE_TIMEOUT"`
	MaxFrameSize         int64         `mapstructure:"MAX_FRAME_SIZE"`

	// Watch mode. WATCH_TIMEOUT of 0 means wait for the task forever;
	// the channel itself never imposes an end-to-end deadline.
	HTTPTimeout    time.Duration `mapstructure:"HTTP_TIMEOUT"`
	WatchTimeout   time.Duration `mapstructure:"WATCH_TIMEOUT"`
	CourseName     string        `mapstructure:"COURSE_NAME"`
	CourseType     string        `mapstructure:"COURSE_TYPE"`
	CourseAudience string        `mapstructure:"COURSE_AUDIENCE"`
	CourseLevel    string        `mapstructure:"COURSE_LEVEL"`
	CourseDuration string        `mapstructure:"COURSE_DURATION"`
	CourseChapters int           `mapstructure:"COURSE_CHAPTERS"`

	// Simulator mode. A non-empty SIM_LISTEN switches the binary into
	// a local generation-backend simulator on that address. SIM_FAIL_STEP
	// names a pipeline step at which every generation fails; empty means
	// generations always succeed.
	SimListen       string        `mapstructure:"SIM_LISTEN"`
	SimStepDelay    time.Duration `mapstructure:"SIM_STEP_DELAY"`
	SimFailStep     string        `mapstructure:"SIM_FAIL_STEP"`
	ThrottleCPU     float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem int64         `mapstructure:"THROTTLE_FREEMEM"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// We only care about converting strings to time.Duration.
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		// We only care about converting strings to int64s for byte sizes.
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	// Set default values as strings, the hooks will handle them.
	vp.SetDefault("API_BASE", "http://localhost:8000")
	vp.SetDefault("KEEPALIVE_INTERVAL", "30s")
	vp.SetDefault("RECONNECT_DELAY", "3s")
	vp.SetDefault("MAX_RECONNECT_ATTEMPTS", 5)
	vp.SetDefault("HANDSHAKE_TIMEOUT", "10s")
	vp.SetDefault("MAX_FRAME_SIZE", "1MB")
	vp.SetDefault("HTTP_TIMEOUT", "30s")
	vp.SetDefault("WATCH_TIMEOUT", "0s")
	vp.SetDefault("COURSE_NAME", "Untitled Course")
	vp.SetDefault("COURSE_TYPE", "general")
	vp.SetDefault("COURSE_AUDIENCE", "beginners")
	vp.SetDefault("COURSE_LEVEL", "beginner")
	vp.SetDefault("COURSE_DURATION", "16h")
	vp.SetDefault("COURSE_CHAPTERS", 6)
	vp.SetDefault("SIM_LISTEN", "")
	vp.SetDefault("SIM_STEP_DELAY", "300ms")
	vp.SetDefault("SIM_FAIL_STEP", "")
	vp.SetDefault("THROTTLE_CPU", 20.0)
	vp.SetDefault("THROTTLE_FREEMEM", "100MB")

	// Load from config file
	vp.SetConfigName("coursegen_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/coursegen/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Load from environment variables
	vp.SetEnvPrefix("COURSEGEN")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// Unmarshal the config, providing our custom composed hooks.
	// The order matters: the first hook that succeeds is used.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
