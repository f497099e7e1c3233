package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Database  DatabaseConfig         `mapstructure:"database"`
	Redis     RedisConfig            `mapstructure:"redis"`
	JWT       JWTConfig              `mapstructure:"jwt"`
	OSS       OSSConfig              `mapstructure:"oss"`
	Email     EmailConfig            `mapstructure:"email"`
	Consensus ConsensusConfig        `mapstructure:"consensus"`
	Providers []ProviderConfig       `mapstructure:"providers"`
	Queues    map[string]QueueConfig `mapstructure:"queues"`
	Scheduler SchedulerConfig        `mapstructure:"scheduler"`
	Trigger   TriggerConfig          `mapstructure:"trigger"`
	CORS      CORSConfig             `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// ConsensusConfig 多提供商共识参数
type ConsensusConfig struct {
	Threshold      float64 `mapstructure:"threshold"`        // 共识阈值，默认 0.7
	Tolerance      float64 `mapstructure:"tolerance"`        // 数值得分容差
	CallTimeoutSec int     `mapstructure:"call_timeout_sec"` // 单次提供商调用超时
}

func (c ConsensusConfig) CallTimeout() time.Duration {
	if c.CallTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CallTimeoutSec) * time.Second
}

// ProviderConfig 单个推理服务提供商
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Primary bool   `mapstructure:"primary"` // 共识达成后返回该提供商的结果
}

// QueueConfig 每个命名队列独立的 worker 数与重试策略
type QueueConfig struct {
	Workers        int    `mapstructure:"workers"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	Backoff        string `mapstructure:"backoff"`          // fixed | exponential
	BackoffBaseSec int    `mapstructure:"backoff_base_sec"` // 基础退避秒数
	JobTimeoutSec  int    `mapstructure:"job_timeout_sec"`  // 任务整体时钟预算
}

type SchedulerConfig struct {
	SweepIntervalSec  int `mapstructure:"sweep_interval_sec"`
	StalenessDays     int `mapstructure:"staleness_days"`
	LearningThreshold int `mapstructure:"learning_threshold"`
}

type TriggerConfig struct {
	// ActionQueues 将动作类型映射到队列名，未列出的动作走 notification 队列
	ActionQueues map[string]string `mapstructure:"action_queues"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Consensus.Threshold <= 0 {
		cfg.Consensus.Threshold = 0.7
	}
	if cfg.Consensus.Tolerance <= 0 {
		cfg.Consensus.Tolerance = 5.0
	}
	if cfg.Queues == nil {
		cfg.Queues = map[string]QueueConfig{}
	}
	for name, q := range cfg.Queues {
		if q.Workers <= 0 {
			q.Workers = 2
		}
		if q.MaxAttempts <= 0 {
			q.MaxAttempts = 3
		}
		if q.Backoff == "" {
			q.Backoff = "exponential"
		}
		if q.BackoffBaseSec <= 0 {
			q.BackoffBaseSec = 2
		}
		if q.JobTimeoutSec <= 0 {
			q.JobTimeoutSec = 600
		}
		cfg.Queues[name] = q
	}
	if cfg.Scheduler.SweepIntervalSec <= 0 {
		cfg.Scheduler.SweepIntervalSec = 300
	}
	if cfg.Scheduler.StalenessDays <= 0 {
		cfg.Scheduler.StalenessDays = 30
	}
	if cfg.Scheduler.LearningThreshold <= 0 {
		cfg.Scheduler.LearningThreshold = 5
	}
}

// QueueFor 返回某队列的配置，未配置时回退到默认值
func (c *Config) QueueFor(name string) QueueConfig {
	if q, ok := c.Queues[name]; ok {
		return q
	}
	return QueueConfig{Workers: 2, MaxAttempts: 3, Backoff: "exponential", BackoffBaseSec: 2, JobTimeoutSec: 600}
}
