package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory tree so no real .env is found.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"RPC_URLS", "PERFORMANCE_RPC_URLS", "STREAM_ENABLED", "GRPC_URL", "GRPC_TOKEN",
		"CACHED_WALLETS", "JITO_URLS", "NOZOMI_URLS", "RELAY_REQUESTS_PER_ENDPOINT",
		"WALLET_PRIVATE_KEY", "HTTP_ADDR", "LOG_LEVEL", "METRICS_NAMESPACE",
		"CONFIRMATION_TIMEOUT", "SLOT_CONFIRMATION_TIMEOUT", "CACHE_RETENTION",
	} {
		if v, ok := os.LookupEnv(key); ok {
			t.Setenv(key, v)
			os.Unsetenv(key)
		}
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("RPC_URLS", "https://a.example,https://b.example")
	t.Setenv("GRPC_URL", "https://grpc.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RPCURLs)
	assert.True(t, cfg.StreamEnabled)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "solanatrade", cfg.MetricsNamespace)
	assert.Equal(t, 5, cfg.RelayRequestsPerEndpoint)
	assert.Equal(t, 60*time.Second, cfg.ConfirmationTimeout)
	assert.Equal(t, 60*time.Second, cfg.SlotConfirmationTimeout)
	assert.Equal(t, 60*time.Second, cfg.CacheRetention)

	wallet, err := cfg.Wallet()
	require.NoError(t, err)
	assert.Nil(t, wallet)
}

func TestLoad_Validation(t *testing.T) {
	isolate(t)

	_, err := Load()
	assert.ErrorContains(t, err, "RPC_URLS")

	t.Setenv("PERFORMANCE_RPC_URLS", "https://perf.example")
	_, err = Load()
	assert.ErrorContains(t, err, "GRPC_URL")

	t.Setenv("STREAM_ENABLED", "false")
	_, err = Load()
	require.NoError(t, err)

	t.Setenv("LOG_LEVEL", "loud")
	_, err = Load()
	assert.ErrorContains(t, err, "LOG_LEVEL")
	t.Setenv("LOG_LEVEL", "debug")

	t.Setenv("WALLET_PRIVATE_KEY", "not-base58-0OIl")
	_, err = Load()
	assert.ErrorContains(t, err, "WALLET_PRIVATE_KEY")

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	t.Setenv("WALLET_PRIVATE_KEY", key.String())
	cfg, err := Load()
	require.NoError(t, err)
	wallet, err := cfg.Wallet()
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), wallet.PublicKey())
}

func TestLoad_ParsesWallets(t *testing.T) {
	isolate(t)
	t.Setenv("RPC_URLS", "https://a.example")
	t.Setenv("STREAM_ENABLED", "false")
	t.Setenv("CACHED_WALLETS", "So11111111111111111111111111111111111111112,11111111111111111111111111111111")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"), solana.SystemProgramID}, cfg.CachedWallets)

	t.Setenv("CACHED_WALLETS", "nope")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_ReadsDotEnvFromParent(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NOZOMI_URLS=https://nozomi.example\nRPC_URLS=https://dotenv.example\nSTREAM_ENABLED=false\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("NOZOMI_URLS")
		os.Unsetenv("RPC_URLS")
		os.Unsetenv("STREAM_ENABLED")
	})
	sub := filepath.Join(dir, "cmd", "inner")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://dotenv.example"}, cfg.RPCURLs)
	assert.Equal(t, []string{"https://nozomi.example"}, cfg.NozomiURLs)
}

func TestNewLogger(t *testing.T) {
	log := NewLogger("trace")
	assert.Equal(t, logrus.TraceLevel, log.GetLevel())
	f, ok := log.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.True(t, f.FullTimestamp)
	assert.Equal(t, "2006-01-02 15:04:05", f.TimestampFormat)

	assert.Equal(t, logrus.InfoLevel, NewLogger("bogus").GetLevel())
}
