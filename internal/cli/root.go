package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/wigtn/wigtn-spot-finder/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"                 _    __ _           _\n" +
		"  ___ _ __  ___ | |_ / _(_)_ __   __| | ___ _ __\n" +
		" / __| '_ \\/ _ \\| __| |_| | '_ \\ / _` |/ _ \\ '__|\n" +
		" \\__ \\ |_) | (_) | |_|  _| | | | | (_| |  __/ |\n" +
		" |___/ .__/\\___/ \\__|_| |_|_| |_|\\__,_|\\___|_|\n" +
		"     |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "spotfinder",
	Short: "Spotfinder - Korea travel assistant",
	Long:  color.CyanString(logo) + "\nA context-aware travel assistant service for exploring Korea.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(memoryCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
