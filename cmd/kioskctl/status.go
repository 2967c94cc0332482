package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"moneychanger/pkg/config"
)

func statusCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running kiosk control core's /status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runStatus(cmd, cfg.API.ListenAddr)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "config overlay to read the listen address from")
	return cmd
}

func runStatus(cmd *cobra.Command, listenAddr string) error {
	url := "http://localhost" + listenAddr + "/status"

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}
	out, _ := json.MarshalIndent(body, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
