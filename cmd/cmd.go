package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	clearData bool
)

var rootCmd = &cobra.Command{
	Use:   "attendance-management",
	Short: "Attendance Management",
	Long:  `Employee attendance tracking with device binding and network restrictions.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// Container deployments configure purely through the environment.
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	// Load configuration from file (development)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
