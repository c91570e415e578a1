package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wigtn/wigtn-spot-finder/internal/config"
	"github.com/wigtn/wigtn-spot-finder/internal/memory"
	"github.com/wigtn/wigtn-spot-finder/internal/provider"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
)

var (
	memoryQuery    string
	memoryThreadID string
	memoryLimit    int
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Search a thread's long-term memory",
	Run:   runMemory,
}

func init() {
	memoryCmd.Flags().StringVarP(&memoryQuery, "query", "q", "", "Search query")
	memoryCmd.Flags().StringVarP(&memoryThreadID, "thread", "t", "cli:default", "Thread ID")
	memoryCmd.Flags().IntVarP(&memoryLimit, "limit", "n", 5, "Maximum results")
}

func runMemory(cmd *cobra.Command, args []string) {
	if memoryQuery == "" {
		fmt.Println("Error: --query is required")
		os.Exit(1)
	}

	printHeader("🧠 Spotfinder Memory")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	store, err := thread.Open(cfg.DBPath())
	if err != nil {
		fmt.Printf("Store error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var vec memory.VectorStore
	switch cfg.Memory.Backend {
	case "qdrant":
		vec = memory.NewQdrantStore(cfg.Memory.QdrantURL, cfg.Memory.QdrantCollection, cfg.Memory.EmbeddingDimension)
	default:
		vec = memory.NewSQLiteVecStore(store.DB(), cfg.Memory.EmbeddingDimension)
	}
	prov := provider.NewOpenAIProvider(cfg.Model.APIKey, cfg.Model.APIBase, cfg.Model.Name)
	retriever := memory.NewRetriever(vec, prov, cfg.Memory.EmbeddingModel, memoryLimit, 0)

	records, err := retriever.Retrieve(context.Background(), memoryThreadID, memoryQuery)
	if err != nil {
		fmt.Printf("Retrieval error: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No memories found.")
		return
	}
	for i, rec := range records {
		fmt.Printf("%d. %s %s\n", i+1,
			color.GreenString("[%.2f]", rec.Score),
			color.HiBlackString("(%s, turn %d)", rec.Kind, rec.TurnIndex))
		fmt.Println("   " + rec.Content)
	}
}
