package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfgIns     *Config
	cfgInsOnce sync.Once
	cfgMutex   sync.RWMutex
)

// Env var holding an explicit path to the yaml file.
const ConfigPathEnv = "RADAR_CONFIG"

type ViperLoader struct {
	configChangeCallbacks []func(*Config)
}

func NewViperLoader() (*ViperLoader, error) {
	return &ViperLoader{
		configChangeCallbacks: make([]func(*Config), 0),
	}, nil
}

func (yl *ViperLoader) Load() (*Config, error) {
	var err error
	cfgInsOnce.Do(func() {
		err = yl.loadConfig()
		if err == nil && yl.IsWatchChange() {
			viper.WatchConfig()
			viper.OnConfigChange(func(e fsnotify.Event) {
				fmt.Printf("[INFO][CONFIG] Config file changed: %s\n", e.Name)
				if errReload := yl.reloadConfig(); errReload != nil {
					fmt.Printf("[ERROR][CONFIG] Failed to reload config: %v\n", errReload)
				}
			})
		}
	})

	if err != nil {
		return nil, err
	}

	cfgMutex.RLock()
	defer cfgMutex.RUnlock()
	return cfgIns, nil
}

func (yl *ViperLoader) IsWatchChange() bool {
	return true
}

func (yl *ViperLoader) RegisterConfigChangeCallback(callback func(*Config)) {
	cfgMutex.Lock()
	yl.configChangeCallbacks = append(yl.configChangeCallbacks, callback)
	cfgMutex.Unlock()
}

func (yl *ViperLoader) loadConfig() error {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		viper.SetConfigFile(path)
		viper.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
	} else {
		viper.AddConfigPath("cfg/yaml")
		viper.SetConfigName("mode")
		viper.SetConfigType("yaml")
	}

	// RADAR_MYSQL_HOST overrides mysql.host
	viper.SetEnvPrefix("RADAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config: %w", err)
	}

	cfgMutex.Lock()
	cfgIns = cfg
	cfgMutex.Unlock()

	return nil
}

func (yl *ViperLoader) reloadConfig() error {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config during reload: %w", err)
	}

	cfgMutex.Lock()
	cfgIns = cfg

	callbacks := make([]func(*Config), len(yl.configChangeCallbacks))
	copy(callbacks, yl.configChangeCallbacks)
	cfgMutex.Unlock()
	for _, callback := range callbacks {
		go callback(cfg)
	}

	fmt.Println("[INFO][CONFIG] Configuration reloaded successfully")
	return nil
}

// AutomaticEnv only resolves keys viper already knows about, so every key
// that may come from the environment alone needs a default here.
func setDefaults() {
	viper.SetDefault("app.name", "content-radar")
	viper.SetDefault("log.driver", "console")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readtimeoutsec", 15)
	viper.SetDefault("server.writetimeoutsec", 60)
	viper.SetDefault("mysql.host", "127.0.0.1")
	viper.SetDefault("mysql.port", "3306")
	viper.SetDefault("mysql.username", "root")
	viper.SetDefault("mysql.password", "")
	viper.SetDefault("mysql.database", "radar")
	viper.SetDefault("mysql.maxidleconnection", 10)
	viper.SetDefault("mysql.maxopenconnection", 100)
	viper.SetDefault("mysql.maxlifetimeconnection", 3600)
	viper.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	viper.SetDefault("mongo.database", "radar")
	viper.SetDefault("mongo.collection", "raw_posts")
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("redis.stopchannel", "crawler:stop")
	viper.SetDefault("rabbitmq.queue", "apify-jobs")
	viper.SetDefault("llm.provider", "completion")
	viper.SetDefault("llm.baseurl", "http://127.0.0.1:11434")
	viper.SetDefault("llm.apikey", "")
	viper.SetDefault("llm.model", "mistral")
	viper.SetDefault("llm.timeoutsec", 90)
	viper.SetDefault("llm.maxretries", 3)
	viper.SetDefault("weaviate.scheme", "http")
	viper.SetDefault("weaviate.lawclass", "LawArticle")
	viper.SetDefault("weaviate.limit", 5)
	viper.SetDefault("tiktok.requestspersecond", 5)
	viper.SetDefault("tiktok.pollintervalsec", 5)
	viper.SetDefault("tiktok.ratelimitresetmin", 1)
	viper.SetDefault("apify.apiurl", "https://api.apify.com/v2")
	viper.SetDefault("apify.token", "")
	viper.SetDefault("classifier.maxinputchars", 4000)
	viper.SetDefault("pipeline.batchsize", 50)
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.intervalsec", 60)
	viper.SetDefault("pipeline.maxattempts", 3)
	viper.SetDefault("migration.batchsize", 500)
	viper.SetDefault("migration.maxretries", 5)
}
