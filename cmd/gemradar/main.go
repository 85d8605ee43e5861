package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gemradar",
		Short:        "Find places locals love before the tourists do",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(seedCmd())
	root.AddCommand(collectCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(gemsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load cities and places from a YAML catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "places.yaml", "catalog file")
	return cmd
}

func collectCmd() *cobra.Command {
	var cityID int64

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect mentions for active cities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), cityID)
		},
	}

	cmd.Flags().Int64Var(&cityID, "city", 0, "only this city (default: all active)")
	return cmd
}

func scoreCmd() *cobra.Command {
	var (
		cityID int64
		date   string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Recompute gem scores for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), cityID, date)
		},
	}

	cmd.Flags().Int64Var(&cityID, "city", 0, "only this city (default: all active)")
	cmd.Flags().StringVar(&date, "date", "", "day to score as YYYY-MM-DD (default: today, UTC)")
	return cmd
}

func gemsCmd() *cobra.Command {
	var (
		cityID     int64
		category   string
		jsonOutput bool
		minScore   float64
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "gems",
		Short: "Show the current hidden gems of a city",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGems(cmd.Context(), cityID, category, minScore, limit, jsonOutput)
		},
	}

	cmd.Flags().Int64Var(&cityID, "city", 0, "city id")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().Float64Var(&minScore, "min-score", 20, "minimum hidden gem score")
	cmd.Flags().IntVar(&limit, "limit", 30, "max gems to show")
	cmd.MarkFlagRequired("city")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
