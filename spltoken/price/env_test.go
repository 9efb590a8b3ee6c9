package price

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

func loadDotEnvNearRepoRoot(t *testing.T) {
	t.Helper()
	wd, _ := os.Getwd()
	dir := wd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}

func pickRPCFromEnv() string {
	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		return v
	}
	if v := os.Getenv("HELIUS_RPC"); v != "" {
		return v
	}
	return ""
}
