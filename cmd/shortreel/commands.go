package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minhvu/shortreel/internal/config"
)

// --- keys ---

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API keys",
	Long: `Manage provider API keys.

Keys are validated against the vendor before they are stored; a rejected
key is never saved. The most recently added key becomes the active one.

Examples:
  shortreel keys add gemini AIza...
  shortreel keys list gemini
  shortreel keys use openai 2f6b01c4-...
  shortreel keys rm gemini 2f6b01c4-...`,
}

var keysAddCmd = &cobra.Command{
	Use:   "add <provider> <secret>",
	Short: "Validate and store an API key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		providerName, secret := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Validating key with %s...", providerName)
		resp, err := client.post(cmd.Context(), "/v1/keys/"+url.PathEscape(providerName), map[string]string{"secret": secret})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Stored key %s (%s), now active", result["masked"], result["id"])
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list <provider>",
	Short: "List stored keys for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/keys/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result struct {
			Keys []struct {
				ID     string `json:"id"`
				Masked string `json:"masked"`
			} `json:"keys"`
			ActiveKeyID string `json:"activeKeyId"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Keys) == 0 {
			fmt.Println("No keys stored.")
			return nil
		}

		for _, k := range result.Keys {
			marker := " "
			if k.ID == result.ActiveKeyID {
				marker = colorize(colorGreen, "*")
			}
			fmt.Printf("%s %s  %s\n", marker, colorize(colorCyan, k.ID), k.Masked)
		}
		return nil
	},
}

var keysUseCmd = &cobra.Command{
	Use:   "use <provider> <id>",
	Short: "Make a stored key the active one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/keys/%s/%s/activate", url.PathEscape(args[0]), url.PathEscape(args[1]))
		resp, err := client.put(cmd.Context(), path, nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Key %s is now active for %s", args[1], args[0])
		return nil
	},
}

var keysRmCmd = &cobra.Command{
	Use:   "rm <provider> <id>",
	Short: "Delete a stored key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/keys/%s/%s", url.PathEscape(args[0]), url.PathEscape(args[1]))
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted key %s", args[1])
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysAddCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysUseCmd)
	keysCmd.AddCommand(keysRmCmd)
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved pipeline sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sessions")
		if err != nil {
			return err
		}

		var sessions []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			CreatedAt string `json:"createdAt"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions saved.")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, s.ID[:8]),
				s.CreatedAt,
				s.Name,
			)
		}
		return nil
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all sessions as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sessions/export")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return apiError(resp)
		}

		var writer io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		if _, err := io.Copy(writer, resp.Body); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		if output != "" {
			printSuccess("Sessions exported to %s", output)
		}
		return nil
	},
}

var sessionsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import sessions from a JSON export",
	Long: `Import sessions from a JSON export.

The default merge mode skips sessions whose id already exists; replace
mode discards the current list first. An invalid entry aborts the whole
import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		if mode != "merge" && mode != "replace" {
			return fmt.Errorf("invalid mode %q: must be merge or replace", mode)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading import file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postRaw(cmd.Context(), "/v1/sessions/import?mode="+mode, data)
		if err != nil {
			return err
		}

		var result struct {
			Status string `json:"status"`
			Added  int    `json:"added"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Imported %d session(s) (%s mode)", result.Added, mode)
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/sessions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func init() {
	sessionsExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	sessionsImportCmd.Flags().String("mode", "merge", "import mode: merge or replace")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
	sessionsCmd.AddCommand(sessionsImportCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			if strings.Contains(err.Error(), "unknown config key") {
				return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(config.ValidKeys(), ", "))
			}
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
