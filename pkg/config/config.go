package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Threading  ThreadingConfig
	Similarity SimilarityConfig
	Ignore     IgnoreConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Pool     RedisPoolConfig
}

type RedisPoolConfig struct {
	MaxConnections      int
	MinIdleConnections  int
	ConnTimeoutSec      int
	SocketTimeoutSec    int
	HealthCheckInterval int
}

type StorageConfig struct {
	Backend string
}

type ThreadingConfig struct {
	Enabled    bool
	MaxWorkers int
	BatchSize  int
}

type SimilarityConfig struct {
	SensitivityLevel        string
	SimilarityThreshold     float64
	HighConfidenceThreshold float64
	ExactMatchThreshold     float64
	NFeatures               int
	NgramMin                int
	NgramMax                int
	UseIDF                  bool
	SublinearTF             bool
	MaxDF                   float64
	MinDF                   int
	RequireMultipleMatches  bool
	MinContentLength        int
}

type IgnoreConfig struct {
	Patterns []string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/docsentry")

	viper.SetEnvPrefix("DOCSENTRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/docsentry.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool.maxConnections", 50)
	viper.SetDefault("redis.pool.minIdleConnections", 5)
	viper.SetDefault("redis.pool.connTimeoutSec", 10)
	viper.SetDefault("redis.pool.socketTimeoutSec", 30)
	viper.SetDefault("redis.pool.healthCheckInterval", 30)

	viper.SetDefault("storage.backend", "sqlite")

	viper.SetDefault("threading.enabled", false)
	viper.SetDefault("threading.maxWorkers", 4)
	viper.SetDefault("threading.batchSize", 50)

	viper.SetDefault("similarity.sensitivityLevel", "medium")
	viper.SetDefault("similarity.similarityThreshold", 0.65)
	viper.SetDefault("similarity.highConfidenceThreshold", 0.85)
	viper.SetDefault("similarity.exactMatchThreshold", 0.98)
	viper.SetDefault("similarity.nFeatures", 8192)
	viper.SetDefault("similarity.ngramMin", 1)
	viper.SetDefault("similarity.ngramMax", 3)
	viper.SetDefault("similarity.useIDF", true)
	viper.SetDefault("similarity.sublinearTF", true)
	viper.SetDefault("similarity.maxDF", 0.95)
	viper.SetDefault("similarity.minDF", 1)
	viper.SetDefault("similarity.requireMultipleMatches", true)
	viper.SetDefault("similarity.minContentLength", 50)

	viper.SetDefault("ignore.patterns", []string{})

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
