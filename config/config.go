package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type StoreConfiguration struct {
	// Root is the directory holding one sub directory per tenant, or ":memory:"
	Root string `mapstructure:"root"`
}

type WorkersConfiguration struct {
	Size int `mapstructure:"size"`
}

type CompletionConfiguration struct {
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

type RPCConfiguration struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type QueryConfiguration struct {
	ReadOnly bool `mapstructure:"read_only"`
}

type Configuration struct {
	Port          int                     `mapstructure:"port"`
	FlightSqlPort int                     `mapstructure:"flightsql_port"`
	LogLevel      string                  `mapstructure:"log_level"`
	Store         StoreConfiguration      `mapstructure:"store"`
	Workers       WorkersConfiguration    `mapstructure:"workers"`
	Completion    CompletionConfiguration `mapstructure:"completion"`
	RPC           RPCConfiguration        `mapstructure:"rpc"`
	Query         QueryConfiguration      `mapstructure:"query"`
}

var Config *Configuration

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 7971)
	v.SetDefault("flightsql_port", 8082)
	v.SetDefault("log_level", "info")
	v.SetDefault("store.root", ":memory:")
	v.SetDefault("workers.size", 8)
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("completion.model", "gpt-3.5-turbo")
	v.SetDefault("completion.timeout", 30*time.Second)
	v.SetDefault("completion.temperature", 0.2)
	v.SetDefault("completion.max_tokens", 200)
	v.SetDefault("rpc.base_url", "")
	v.SetDefault("rpc.api_key", "")
	v.SetDefault("rpc.timeout", 30*time.Second)
	v.SetDefault("query.read_only", true)
}

// Load reads the configuration from defaults, the optional file and the environment.
// Environment keys are prefixed with CHAT_ and use _ instead of ., e.g. CHAT_STORE_ROOT.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// DATA_DIR keeps working the way it does for the querier
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.Store.Root = dataDir
	}
	if cfg.Workers.Size <= 0 {
		cfg.Workers.Size = 1
	}
	return &cfg, nil
}

// InitConfig loads the configuration into Config and panics on error
func InitConfig(path string) {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	Config = cfg
}
