package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reprise-cli/reprise/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the configuration file",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration with the token redacted",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	if jsonOutput() {
		payload := struct {
			API struct {
				Token string `json:"token,omitempty"`
			} `json:"api"`
			Defaults config.DefaultsConfig `json:"defaults"`
			Output   config.OutputConfig   `json:"output"`
		}{
			Defaults: rootCfg.Defaults,
			Output:   rootCfg.Output,
		}
		payload.API.Token = redactToken(rootCfg.API.Token)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(payload)
	}

	p := newPalette()

	fmt.Println(p.bold("Configuration"))

	fmt.Printf("\n%s\n", p.cyan("[api]"))
	fmt.Printf("  token = %s\n", orUnset(redactToken(rootCfg.API.Token)))

	fmt.Printf("\n%s\n", p.cyan("[defaults]"))
	fmt.Printf("  app_slug = %s\n", orUnset(rootCfg.Defaults.AppSlug))
	fmt.Printf("  app_name = %s\n", orUnset(rootCfg.Defaults.AppName))
	fmt.Printf("  username = %s\n", orUnset(rootCfg.Defaults.Username))

	fmt.Printf("\n%s\n", p.cyan("[output]"))
	fmt.Printf("  format = %s\n", rootCfg.Output.Format)

	return nil
}

// redactToken keeps only the first and last four characters of the token.
func redactToken(token string) string {
	if token == "" {
		return ""
	}

	if len(token) <= 8 {
		return "****"
	}

	return token[:4] + "..." + token[len(token)-4:]
}

func orUnset(v string) string {
	if v == "" {
		return "(not set)"
	}

	return v
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: "Set a configuration value and save the file.\n\n" +
			"Valid keys: api.token, defaults.app_slug, defaults.app_name, defaults.username, output.format",
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func runConfigSet(key, value string) error {
	switch key {
	case "api.token":
		rootCfg.API.Token = value
	case "defaults.app_slug":
		rootCfg.Defaults.AppSlug = value
	case "defaults.app_name":
		rootCfg.Defaults.AppName = value
	case "defaults.username":
		rootCfg.Defaults.Username = value
	case "output.format":
		if value != "pretty" && value != "json" {
			return fmt.Errorf("%w: output.format must be \"pretty\" or \"json\"", errUsage)
		}

		rootCfg.Output.Format = value
	default:
		return fmt.Errorf("%w: unknown config key %q (valid: api.token, defaults.app_slug, defaults.app_name, defaults.username, output.format)",
			errUsage, key)
	}

	if err := rootCfg.Save(rootCfgPath); err != nil {
		return err
	}

	if key == "api.token" {
		value = redactToken(value)
	}

	statusf("✓ Set %s = %s\n", key, value)

	return nil
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, statErr := os.Stat(rootCfgPath)
			exists := statErr == nil

			if jsonOutput() {
				payload, _ := json.MarshalIndent(map[string]any{
					"path":   rootCfgPath,
					"exists": exists,
				}, "", "  ")
				fmt.Println(string(payload))

				return nil
			}

			fmt.Printf("Config file: %s\n", rootCfgPath)

			if exists {
				fmt.Println("Exists: yes")
			} else {
				fmt.Println("Exists: no")
			}

			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively create the configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigInit()
		},
	}
}

func runConfigInit() error {
	if jsonOutput() {
		return fmt.Errorf("%w: config init is interactive and requires pretty output", errUsage)
	}

	fmt.Print("Enter your Bitrise API token: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}

	token := strings.TrimSpace(line)
	if token == "" {
		return fmt.Errorf("%w: API token cannot be empty", errUsage)
	}

	rootCfg.API.Token = token

	if err := rootCfg.Save(rootCfgPath); err != nil {
		return err
	}

	statusf("\n✓ Configuration saved to: %s\n\nRun 'reprise apps' to see your apps.\n", rootCfgPath)

	return nil
}
