package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/classroomgames/tugquiz/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "tugsessiond",
	Short: "Realtime classroom trivia Session Engine",
	Long:  "tugsessiond runs the Session Engine: one actor per live classroom trivia session, driving a tug-of-war score over WebSocket and an HTTP Control API.",
}

// Execute runs the root command, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("listen-addr", ":8080", "address to listen on for HTTP and WebSocket traffic")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "PostgreSQL connection string for the Storage Adapter")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address for the State Store")
	rootCmd.PersistentFlags().String("redis-password", "", "Redis password")
	rootCmd.PersistentFlags().Int("redis-db", 0, "Redis logical database index")
	rootCmd.PersistentFlags().String("jwt-signing-key", "", "HMAC secret used to verify HELLO and Control API bearer tokens")
	rootCmd.PersistentFlags().Int("ws-rate-limit-per-second", 10, "max inbound WebSocket frames per connection per second")
	rootCmd.PersistentFlags().Duration("idle-hibernate-timeout", 10*time.Minute, "evict an idle session actor after this long with no commands")
	rootCmd.PersistentFlags().Duration("idle-sweep-interval", time.Minute, "how often the idle sweeper runs")
	rootCmd.PersistentFlags().String("log-level", "info", "zerolog level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "render logs as human-readable console output instead of JSON")

	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("listen_addr", flags.Lookup("listen-addr"))
	_ = viper.BindPFlag("postgres_dsn", flags.Lookup("postgres-dsn"))
	_ = viper.BindPFlag("redis_addr", flags.Lookup("redis-addr"))
	_ = viper.BindPFlag("redis_password", flags.Lookup("redis-password"))
	_ = viper.BindPFlag("redis_db", flags.Lookup("redis-db"))
	_ = viper.BindPFlag("jwt_signing_key", flags.Lookup("jwt-signing-key"))
	_ = viper.BindPFlag("ws_rate_limit_per_second", flags.Lookup("ws-rate-limit-per-second"))
	_ = viper.BindPFlag("idle_hibernate_timeout", flags.Lookup("idle-hibernate-timeout"))
	_ = viper.BindPFlag("idle_sweep_interval", flags.Lookup("idle-sweep-interval"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log_pretty", flags.Lookup("log-pretty"))
	config.BindEnv(viper.GetViper())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "tugsessiond:", err)
	os.Exit(1)
}
