package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
	StoreSQLite = "sqlite"

	SelectionStore = "store"
	SelectionRedis = "redis"

	GateLocal   = "local"
	GateEtcd    = "etcd"
	GateRedlock = "redlock"

	EventsLocal = "local"
	EventsKafka = "kafka"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Mattermost MattermostConfig `mapstructure:"mattermost"`
	Ballot     BallotConfig     `mapstructure:"ballot"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	ETCD       ETCDConfig       `mapstructure:"etcd"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	WebhookPath string `mapstructure:"webhook_path"`
	GraphQLPath string `mapstructure:"graphql_path"`
	// GraphQLToken guards the GraphQL routes. Empty falls back to the
	// webhook token.
	GraphQLToken string `mapstructure:"graphql_token"`
}

type WebhookConfig struct {
	// Token expected in every inbound webhook call.
	Token string `mapstructure:"token"`
}

type MattermostConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	BotToken       string        `mapstructure:"bot_token"`
	BotUsername    string        `mapstructure:"bot_username"`
	AdminUsername  string        `mapstructure:"admin_username"`
	CallbackURL    string        `mapstructure:"callback_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"`
}

type BallotConfig struct {
	Store         string        `mapstructure:"store"`
	Selection     string        `mapstructure:"selection"`
	Gate          string        `mapstructure:"gate"`
	GateName      string        `mapstructure:"gate_name"`
	GateTimeout   time.Duration `mapstructure:"gate_timeout"`
	GateLease     time.Duration `mapstructure:"gate_lease"`
	Events        string        `mapstructure:"events"`
	ReportWorkers int           `mapstructure:"report_workers"`
	SelectionTTL  time.Duration `mapstructure:"selection_ttl"`
	// Candidates is the static candidate directory; empty means the chat
	// platform's own user list is offered.
	Candidates []string `mapstructure:"candidates"`
}

type MySQLConfig struct {
	Master       string `mapstructure:"master"`
	Slave        string `mapstructure:"slave"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	// Selection context storage
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Redlock nodes
	LockAddresses  []string      `mapstructure:"lock_addresses"`
	LockRetryCount int           `mapstructure:"lock_retry_count"`
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ETCDConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

var AppConfig Config

// SetDefaults registers the values used when neither the config file nor
// the environment provide a key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4567)
	v.SetDefault("server.webhook_path", "/vote")
	v.SetDefault("server.graphql_path", "/graphql")

	v.SetDefault("mattermost.api_url", "http://localhost:8065")
	v.SetDefault("mattermost.admin_username", "admin")
	v.SetDefault("mattermost.bot_username", "ballotbot")
	v.SetDefault("mattermost.request_timeout", 10*time.Second)
	v.SetDefault("mattermost.retry_attempts", 3)

	v.SetDefault("ballot.store", StoreSQLite)
	v.SetDefault("ballot.selection", SelectionStore)
	v.SetDefault("ballot.gate", GateLocal)
	v.SetDefault("ballot.gate_name", "ballotbot:gate")
	v.SetDefault("ballot.gate_timeout", 5*time.Second)
	v.SetDefault("ballot.gate_lease", 30*time.Second)
	v.SetDefault("ballot.events", EventsLocal)
	v.SetDefault("ballot.report_workers", 2)
	v.SetDefault("ballot.selection_ttl", 24*time.Hour)

	v.SetDefault("sqlite.path", "voting_bot.db")

	v.SetDefault("mysql.max_open_conns", 10)
	v.SetDefault("mysql.max_idle_conns", 5)

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.timeout", 3*time.Second)
	v.SetDefault("redis.lock_retry_count", 50)
	v.SetDefault("redis.lock_retry_delay", 100*time.Millisecond)

	v.SetDefault("kafka.topic", "ballot-events")
	v.SetDefault("kafka.group_id", "ballotbot")

	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.session_ttl", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
}

// LoadConfig loads the config file (if any) and overlays BALLOT_* env vars.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("ballot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &AppConfig, nil
}

func (c *Config) Validate() error {
	if c.Webhook.Token == "" {
		return errors.New("webhook.token is required")
	}
	switch c.Ballot.Store {
	case StoreMemory, StoreSQLite:
	case StoreMySQL:
		if c.MySQL.Master == "" {
			return errors.New("mysql.master is required when ballot.store is mysql")
		}
	default:
		return fmt.Errorf("unknown ballot.store %q", c.Ballot.Store)
	}
	switch c.Ballot.Selection {
	case SelectionStore:
	case SelectionRedis:
		if c.Redis.DataAddress == "" {
			return errors.New("redis.data_address is required when ballot.selection is redis")
		}
	default:
		return fmt.Errorf("unknown ballot.selection %q", c.Ballot.Selection)
	}
	switch c.Ballot.Gate {
	case GateLocal:
	case GateEtcd:
		if len(c.ETCD.Endpoints) == 0 {
			return errors.New("etcd.endpoints is required when ballot.gate is etcd")
		}
	case GateRedlock:
		if len(c.Redis.LockAddresses) == 0 {
			return errors.New("redis.lock_addresses is required when ballot.gate is redlock")
		}
	default:
		return fmt.Errorf("unknown ballot.gate %q", c.Ballot.Gate)
	}
	switch c.Ballot.Events {
	case EventsLocal:
	case EventsKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when ballot.events is kafka")
		}
	default:
		return fmt.Errorf("unknown ballot.events %q", c.Ballot.Events)
	}
	return nil
}
