package cfg

type (
	App struct {
		Name    string
		Version string
	}

	Log struct {
		Driver string // console | zap
		Level  string
	}

	Server struct {
		Port            int
		ReadTimeoutSec  int
		WriteTimeoutSec int
	}

	Mysql struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	Mongo struct {
		Uri        string
		Database   string
		Collection string
	}

	Redis struct {
		Addr        string
		Password    string
		Db          int
		StopChannel string
	}

	KafkaTopics struct {
		Video   string
		Comment string
	}

	Kafka struct {
		Brokers []string
		Topics  KafkaTopics
	}

	RabbitMQ struct {
		Url   string
		Queue string
	}

	Llm struct {
		Provider    string // openai | completion
		BaseUrl     string
		ApiKey      string
		Model       string
		TimeoutSec  int
		MaxRetries  int
		Temperature float32
		MaxTokens   int
	}

	Weaviate struct {
		Host     string
		Scheme   string
		LawClass string
		Limit    int
	}

	TikTok struct {
		ApiUrl            string
		ApiKey            string
		RequestsPerSecond int
		PollIntervalSec   int
		RateLimitResetMin int
	}

	Apify struct {
		ApiUrl  string
		Token   string
		ActorId string
	}

	Classifier struct {
		Categories     []string
		MaxInputChars  int
		RiskOnComments bool
	}

	Pipeline struct {
		BatchSize   int
		Workers     int
		IntervalSec int
		MaxAttempts int
	}

	Migration struct {
		Source     Mysql
		BatchSize  int
		MaxRetries int
	}
)

type Config struct {
	App        App
	Log        Log
	Server     Server
	Mysql      Mysql
	Mongo      Mongo
	Redis      Redis
	Kafka      Kafka
	RabbitMQ   RabbitMQ
	Llm        Llm
	Weaviate   Weaviate
	TikTok     TikTok
	Apify      Apify
	Classifier Classifier
	Pipeline   Pipeline
	Migration  Migration
}

// DefaultCategories is used when Classifier.Categories is empty.
var DefaultCategories = []string{
	"politics", "entertainment", "sports", "religion", "education",
	"health", "business", "technology", "crime", "other",
}

// Categories returns the configured category labels or DefaultCategories.
func (c *Config) Categories() []string {
	if len(c.Classifier.Categories) == 0 {
		return DefaultCategories
	}
	return c.Classifier.Categories
}
