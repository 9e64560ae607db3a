package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath    string
	redisAddr string
)

var rootCmd = &cobra.Command{
	Use:   "vanity",
	Short: "Vanity - experiment-driven A/B testing and scoring",
	Long: `Vanity assigns visitors to experiment alternatives reproducibly and
scores the results with either a two-proportion z-test or a Bayesian
bandit. Definitions and counters live in embedded SQLite; counters can
be kept in Redis instead for multi-process deployments.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("VANITY_DB_PATH", "./vanity.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", os.Getenv("VANITY_REDIS_ADDR"), "redis address for counters (optional, e.g. localhost:6379)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
