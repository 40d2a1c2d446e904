package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into dir for the duration of the test so no config.yaml or
// .env from the repository leaks in.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func setMemoryBackends(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("QUEUE_BACKEND", "memory")
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	setMemoryBackends(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "default-group", cfg.Queue.GroupKey)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Store)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Ledger)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Queue)
	assert.Equal(t, time.Hour, cfg.Storage.PresignTTL)
	assert.False(t, cfg.Worker.Enabled)
}

func TestLoad_OriginalEnvironmentNames(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("S3_BUCKET_NAME", "images")
	t.Setenv("SQS_QUEUE_NAME", "enhancements.fifo")
	t.Setenv("DYNAMODB_TABLE_NAME", "enhancements")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("QUEUE_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendS3, cfg.Storage.Backend)
	assert.Equal(t, "images", cfg.Storage.Bucket)
	assert.Equal(t, "enhancements.fifo", cfg.Queue.Name)
	assert.Equal(t, "enhancements", cfg.Ledger.Table)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Queue)
}

func TestLoad_SecretFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	setMemoryBackends(t)

	secretPath := filepath.Join(dir, "redis_password")
	require.NoError(t, os.WriteFile(secretPath, []byte("s3cret\n"), 0o600))
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_PASSWORD_FILE", secretPath)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
}

func TestLoad_MissingBucket(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("S3_BUCKET_NAME", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.bucket")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Storage:  StorageConfig{Backend: BackendMemory},
			Ledger:   LedgerConfig{Backend: BackendMemory},
			Queue:    QueueConfig{Backend: BackendMemory, GroupKey: "default-group"},
			Timeouts: TimeoutConfig{Store: time.Second, Ledger: time.Second, Queue: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "ftp" }, "unknown storage backend"},
		{"minio without endpoint", func(c *Config) {
			c.Storage.Backend = BackendMinio
			c.Storage.Bucket = "images"
		}, "storage.endpoint"},
		{"postgres without dsn", func(c *Config) { c.Ledger.Backend = BackendPostgres }, "ledger.dsn"},
		{"dynamodb without table", func(c *Config) { c.Ledger.Backend = BackendDynamoDB }, "ledger.table"},
		{"rabbitmq without url", func(c *Config) { c.Queue.Backend = BackendRabbitMQ }, "queue.url"},
		{"sqs without name", func(c *Config) { c.Queue.Backend = BackendSQS }, "queue.name"},
		{"unknown queue", func(c *Config) { c.Queue.Backend = "kafka" }, "unknown queue backend"},
		{"empty group key", func(c *Config) { c.Queue.GroupKey = "" }, "group_key"},
		{"zero timeout", func(c *Config) { c.Timeouts.Queue = 0 }, "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
