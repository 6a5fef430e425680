package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("PORT", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MONGO_DATABASE", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("HEARTBEAT_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, StoreDriverMongo, cfg.Store.Driver)
	assert.Equal(t, "test", cfg.Mongo.Database)
	assert.True(t, cfg.Mongo.Transactions)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "uploads", cfg.Upload.Dir)
	assert.Equal(t, 14*time.Minute, cfg.Heartbeat.Interval)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb+srv://user:pw@cluster0.example.net/pharmacy?retryWrites=true")
	t.Setenv("MONGO_DATABASE", "")
	t.Setenv("MONGO_TRANSACTIONS", "false")
	t.Setenv("PORT", "8081")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "pharmacy", cfg.Mongo.Database)
	assert.False(t, cfg.Mongo.Transactions)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.Redis.Enabled())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "5000"},
			Store:  StoreConfig{Driver: StoreDriverMemory},
			Upload: UploadConfig{Dir: "uploads", MaxBytes: 1024},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid memory", mutate: func(c *Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: true},
		{name: "postgres without url", mutate: func(c *Config) { c.Store.Driver = StoreDriverPostgres }, wantErr: true},
		{name: "zero upload size", mutate: func(c *Config) { c.Upload.MaxBytes = 0 }, wantErr: true},
		{name: "heartbeat without interval", mutate: func(c *Config) {
			c.Heartbeat = HeartbeatConfig{URL: "https://example.com"}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseFromURI(t *testing.T) {
	assert.Equal(t, "test", databaseFromURI("mongodb://localhost:27017"))
	assert.Equal(t, "test", databaseFromURI("mongodb://localhost:27017/"))
	assert.Equal(t, "test", databaseFromURI("mongodb://localhost:27017/?replicaSet=rs0"))
	assert.Equal(t, "shop", databaseFromURI("mongodb://a:27017,b:27017/shop?replicaSet=rs0"))
	assert.Equal(t, "test", databaseFromURI("not a uri"))
}
