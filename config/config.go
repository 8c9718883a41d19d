package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

type RemoteConfig struct {
	URL     string `toml:"url" mapstructure:"url"`
	Timeout int    `toml:"timeout" mapstructure:"timeout"` // seconds
	Retries uint64 `toml:"retries" mapstructure:"retries"`
}

type Config struct {
	Token        string `toml:"token" mapstructure:"token"`
	Host         string `toml:"host" mapstructure:"host"`
	Port         string `toml:"port" mapstructure:"port"`
	Mode         string `toml:"mode" mapstructure:"mode"`
	MaxBodyBytes int64  `toml:"max_body_bytes" mapstructure:"max_body_bytes"`
	Backend      string `toml:"backend" mapstructure:"backend"`
	Libonnx      string `toml:"libonnx" mapstructure:"libonnx"`

	ModelUrl       string `toml:"model_url" mapstructure:"model_url"`
	ModelDir       string `toml:"model_dir" mapstructure:"model_dir"`
	ModelFileName  string `toml:"model_file_name" mapstructure:"model_file_name"`
	VocabFileName  string `toml:"vocab_file_name" mapstructure:"vocab_file_name"`
	MergesFileName string `toml:"merges_file_name" mapstructure:"merges_file_name"`
	PoolSize       int    `toml:"pool_size" mapstructure:"pool_size"`
	Threads        int    `toml:"threads" mapstructure:"threads"`

	Remote RemoteConfig `toml:"remote" mapstructure:"remote"`
	Log    LogConfig    `toml:"log" mapstructure:"log"`
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendONNX:
		if c.PoolSize < 1 {
			return fmt.Errorf("pool_size must be positive, got %d", c.PoolSize)
		}
	case BackendRemote:
		if c.Remote.URL == "" {
			return errors.New("remote backend requires remote.url")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

func Default() Config {
	return Config{
		Token:          "",
		Host:           "0.0.0.0",
		Port:           "5000",
		Mode:           "release",
		MaxBodyBytes:   16 << 20,
		Backend:        BackendONNX,
		ModelUrl:       "https://huggingface.co/Xenova/clip-vit-base-patch32/resolve/main",
		ModelDir:       "models",
		ModelFileName:  "model.onnx",
		VocabFileName:  "vocab.json",
		MergesFileName: "merges.txt",
		PoolSize:       1,
		Remote: RemoteConfig{
			Timeout: 30,
			Retries: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns the config file location, overridable with CLIPSCORE_CONFIG.
func Path() string {
	if p := os.Getenv("CLIPSCORE_CONFIG"); p != "" {
		return p
	}
	return "config.toml"
}

var (
	cfg      Config
	loadOnce sync.Once
)

func C() Config {
	loadOnce.Do(func() {
		var err error
		cfg, err = Load(Path())
		if err != nil {
			panic(err)
		}
	})
	return cfg
}
