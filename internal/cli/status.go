package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wigtn/wigtn-spot-finder/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ Spotfinder Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 Spotfinder Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (using defaults)")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config load error: %v\n", err)
			return
		}
		if cfg.Model.APIKey != "" {
			fmt.Println("API Key: ✓ Found")
		} else {
			fmt.Println("API Key: ✗ Not found (set UPSTAGE_API_KEY)")
		}
		fmt.Printf("Model:   %s (summaries: %s)\n", cfg.Model.Name, cfg.Model.SummarizationModel)
		fmt.Printf("Memory:  %s backend, %d-dim embeddings\n", cfg.Memory.Backend, cfg.Memory.EmbeddingDimension)

		if _, err := os.Stat(cfg.DBPath()); err == nil {
			fmt.Println("DB:      ✓ Found (" + cfg.DBPath() + ")")
		} else {
			fmt.Println("DB:      ✗ Not created yet")
		}

		if cfg.Events.Enabled && cfg.Events.KafkaBrokers != "" {
			fmt.Printf("Events:  ✓ Kafka → %s (%s)\n", cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		} else {
			fmt.Println("Events:  log only")
		}
	},
}
