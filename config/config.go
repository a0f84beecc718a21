// mediaflow/config/config.go
package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	BackendURL         string        `mapstructure:"BACKEND_URL"`
	JobsPath           string        `mapstructure:"JOBS_PATH"`
	UploadPath         string        `mapstructure:"UPLOAD_PATH"`
	PollInterval       time.Duration `mapstructure:"POLL_INTERVAL"`
	RefreshInterval    time.Duration `mapstructure:"REFRESH_INTERVAL"`
	Retention          time.Duration `mapstructure:"RETENTION"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LargeFileThreshold int64         `mapstructure:"LARGE_FILE_THRESHOLD"`
	MinFreeDisk        int64         `mapstructure:"MIN_FREE_DISK"`
	StagingDir         string        `mapstructure:"STAGING_DIR"`
	FFProbeBin         string        `mapstructure:"FFPROBE_BIN"`
	FFProbeArgs        string        `mapstructure:"FFPROBE_ARGS"`
	ProbeTimeout       time.Duration `mapstructure:"PROBE_TIMEOUT"`
	ProbeCacheSize     int           `mapstructure:"PROBE_CACHE_SIZE"`
	EventBuffer        int           `mapstructure:"EVENT_BUFFER"`
	Port               string        `mapstructure:"PORT"`
}

// stringToDurationHookFunc parses Go duration strings such as "2s" or "5m".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable size strings such as "500MB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let other parsers handle it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("BACKEND_URL", "http://localhost:8080")
	vp.SetDefault("JOBS_PATH", "/api/jobs")
	vp.SetDefault("UPLOAD_PATH", "/uploads")
	vp.SetDefault("POLL_INTERVAL", "2s")
	vp.SetDefault("REFRESH_INTERVAL", "2s")
	vp.SetDefault("RETENTION", "5m")
	vp.SetDefault("REQUEST_TIMEOUT", "10s")
	vp.SetDefault("LARGE_FILE_THRESHOLD", "500MB")
	vp.SetDefault("MIN_FREE_DISK", "0B")
	vp.SetDefault("STAGING_DIR", os.TempDir())
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("FFPROBE_ARGS", "-v quiet -print_format json -show_format -show_streams ${INPUT_MEDIA}")
	vp.SetDefault("PROBE_TIMEOUT", "15s")
	vp.SetDefault("PROBE_CACHE_SIZE", 256)
	vp.SetDefault("EVENT_BUFFER", 500)
	vp.SetDefault("PORT", "8090")

	vp.SetConfigName("mediaflow_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/mediaflow/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("MEDIAFLOW")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that converts the value wins.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	cfg.BackendURL = strings.TrimSuffix(cfg.BackendURL, "/")
	return &cfg, nil
}

// UploadURL joins the backend URL, the upload path and a bare filename.
func (c *Config) UploadURL(filename string) string {
	return c.BackendURL + "/" + strings.Trim(c.UploadPath, "/") + "/" + strings.TrimPrefix(filename, "/")
}
