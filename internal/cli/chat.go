package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	chatMessage  string
	chatThreadID string
	chatLanguage string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send one message to the assistant from the CLI",
	Run:   runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Message to send")
	chatCmd.Flags().StringVarP(&chatThreadID, "thread", "t", "cli:default", "Thread ID")
	chatCmd.Flags().StringVarP(&chatLanguage, "language", "l", "", "Response language (en, ko, ja, zh)")
}

func runChat(cmd *cobra.Command, args []string) {
	if chatMessage == "" {
		fmt.Println("Error: --message is required")
		os.Exit(1)
	}

	printHeader("🗺️ Spotfinder Chat")

	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	lang := chatLanguage
	if lang == "" {
		lang = rt.cfg.Model.DefaultLanguage
	}

	fmt.Printf("🤖 %s\n", rt.cfg.Model.Name)
	fmt.Println("Thinking...")

	res, err := rt.engine.HandleTurn(context.Background(), chatThreadID, "cli", lang, chatMessage)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n" + res.Response)
	fmt.Println()
	fmt.Println(color.HiBlackString("turn %d · stage %s · %d tokens · %dms",
		res.TurnNumber, res.Stage, res.TokensUsed, res.LatencyMS))
}
