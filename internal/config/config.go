// Package config loads chatcore's runtime configuration with Viper,
// following the same env-first, defaults-in-code pattern the rest of the
// service stack uses for Redis/Postgres/Kafka wiring.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string

	RecentMessagesWindow      int
	SessionTTLDays            int
	SummaryMinMessages        int
	SummaryHistoryLimit       int
	SummaryMaxChars           int
	SemanticCacheNamespace    string
	SemanticCacheSimThreshold float64
	PolicyDocsNamespace       string

	RedisAddr string
	RedisDB   int

	MongoURI string
	MongoDB  string

	PostgresDSN string

	MilvusAddr string

	OpenAIAPIKey    string
	OpenAIChatModel string
	OpenAIEmbedModel string

	KafkaBrokers      []string
	KafkaEventsTopic  string
	NotificationTopic string

	AdminBypassEmail    string
	AdminBypassPasscode string

	EmbedTimeout        time.Duration
	VectorQueryTimeout  time.Duration
	LLMTimeout          time.Duration
	DBTimeout           time.Duration
	SessionStoreTimeout time.Duration
	NotificationTimeout time.Duration
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHATCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{
		HTTPAddr: v.GetString("http_addr"),

		RecentMessagesWindow:      v.GetInt("recent_messages_window"),
		SessionTTLDays:            v.GetInt("session_ttl_days"),
		SummaryMinMessages:        v.GetInt("session_summary_min_messages"),
		SummaryHistoryLimit:       v.GetInt("session_summary_history_limit"),
		SummaryMaxChars:           v.GetInt("session_summary_max_chars"),
		SemanticCacheNamespace:    v.GetString("semantic_cache_namespace"),
		SemanticCacheSimThreshold: v.GetFloat64("semantic_cache_similarity_threshold"),
		PolicyDocsNamespace:       v.GetString("policy_docs_namespace"),

		RedisAddr: v.GetString("redis_addr"),
		RedisDB:   v.GetInt("redis_db"),

		MongoURI: v.GetString("mongo_uri"),
		MongoDB:  v.GetString("mongo_db"),

		PostgresDSN: v.GetString("postgres_dsn"),

		MilvusAddr: v.GetString("milvus_addr"),

		OpenAIAPIKey:     v.GetString("openai_api_key"),
		OpenAIChatModel:  v.GetString("openai_chat_model"),
		OpenAIEmbedModel: v.GetString("openai_embed_model"),

		KafkaBrokers:      v.GetStringSlice("kafka_brokers"),
		KafkaEventsTopic:  v.GetString("kafka_events_topic"),
		NotificationTopic: v.GetString("notification_topic"),

		AdminBypassEmail:    v.GetString("admin_bypass_email"),
		AdminBypassPasscode: v.GetString("admin_bypass_passcode"),

		EmbedTimeout:        v.GetDuration("timeouts.embed"),
		VectorQueryTimeout:  v.GetDuration("timeouts.vector_query"),
		LLMTimeout:          v.GetDuration("timeouts.llm"),
		DBTimeout:           v.GetDuration("timeouts.db"),
		SessionStoreTimeout: v.GetDuration("timeouts.session_store"),
		NotificationTimeout: v.GetDuration("timeouts.notification"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")

	v.SetDefault("recent_messages_window", 12)
	v.SetDefault("session_ttl_days", 7)
	v.SetDefault("session_summary_min_messages", 12)
	v.SetDefault("session_summary_history_limit", 40)
	v.SetDefault("session_summary_max_chars", 256)
	v.SetDefault("semantic_cache_namespace", "semantic_cache")
	v.SetDefault("semantic_cache_similarity_threshold", 0.9)
	v.SetDefault("policy_docs_namespace", "policy_docs")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)

	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "chatcore")

	v.SetDefault("postgres_dsn", "")

	v.SetDefault("milvus_addr", "localhost:19530")

	v.SetDefault("openai_chat_model", "gpt-4o-mini")
	v.SetDefault("openai_embed_model", "text-embedding-3-small")

	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("kafka_events_topic", "chatcore.turns")
	v.SetDefault("notification_topic", "chatcore.escalations")

	v.SetDefault("timeouts.embed", 10*time.Second)
	v.SetDefault("timeouts.vector_query", 10*time.Second)
	v.SetDefault("timeouts.llm", 30*time.Second)
	v.SetDefault("timeouts.db", 5*time.Second)
	v.SetDefault("timeouts.session_store", 2*time.Second)
	v.SetDefault("timeouts.notification", 10*time.Second)
}
