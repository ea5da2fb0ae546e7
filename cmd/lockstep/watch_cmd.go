package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/lockstep/internal/tui/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var apiURL, apiKey string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard of locks, dispatches and events for one instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if apiURL == "" {
				apiURL = "http://127.0.0.1:8080"
				if cfg, err := opts.loadConfig(cmd); err == nil && cfg.API.Listen != "" {
					apiURL = "http://" + cfg.API.Listen
					if apiKey == "" {
						apiKey = cfg.API.APIKey
					}
				}
			}

			p := tea.NewProgram(watch.New(apiURL, apiKey))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "", "lockstep API URL (default: from config api.listen)")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("LOCKSTEP_API_KEY"), "API bearer token")
	return cmd
}
