package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wigtn/wigtn-spot-finder/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	printHeader("📡 Spotfinder Gateway")

	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	srv := server.New(rt.cfg, rt.engine, rt.store, rt.emitter)
	fmt.Printf("Model: %s\n", rt.cfg.Model.Name)
	fmt.Printf("Listening on http://%s:%d\n", rt.cfg.Gateway.Host, rt.cfg.Gateway.Port)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Printf("Gateway error: %v\n", err)
		os.Exit(1)
	}
}
