package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/jobd/am"
	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/internal/util"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage jobd configuration",
	Long: `am - Manage jobd configuration ("I am")

Display and check jobd configuration settings.

Configuration sources (in order of precedence):
1. Environment variables (JOBD_* prefix, plus PORT)
2. Project config (nearest ./am.toml, searching up directories)
3. User config (~/.jobd/am.toml)
4. System config (/etc/jobd/am.toml)
5. Default values

Examples:
  jobd am show                    # Show current configuration
  jobd am show --format json      # Show configuration in JSON format
  jobd am get jobs.ttl_seconds    # Get specific config value
  jobd am validate                # Validate current configuration
  jobd am validate ./am.toml      # Strictly check one file`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective jobd configuration merged from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., jobs.max_items, server.port)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate configuration",
	Long: `Validate the effective configuration, or strictly check one TOML file.

A file check also reports keys that jobd does not recognise, which are
otherwise ignored silently.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long:  "List every effective setting together with the source that supplied it.",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

// marshalConfig renders cfg in one of the supported formats
func marshalConfig(cfg *am.Config, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to JSON")
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to YAML")
		}
		return "# jobd configuration\n" + string(data), nil

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to TOML")
		}
		return "# jobd configuration\n" + string(data), nil

	default:
		return "", errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out, err := marshalConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	fmt.Println(am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		cfg, err := am.Load()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		pterm.Success.Println("Configuration is valid")
		return nil
	}

	report, err := am.CheckFile(args[0])
	if report != nil {
		for _, key := range report.UnknownKeys {
			pterm.Warning.Printf("Unknown key %s in %s\n", pterm.Yellow(key), report.Path)
		}
	}
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if len(report.UnknownKeys) > 0 {
		return errors.Newf("%s has %d unknown key(s)", report.Path, len(report.UnknownKeys))
	}
	pterm.Success.Printf("%s is valid\n", report.Path)
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	settings, err := am.GetConfigIntrospection()
	if err != nil {
		return fmt.Errorf("failed to get config introspection: %w", err)
	}

	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [default]      Built-in defaults")
	fmt.Printf("  2. [system]       %s\n", am.SystemConfigPath)
	fmt.Println("  3. [user]         ~/.jobd/am.toml")
	fmt.Println("  4. [project]      ./am.toml (searches up directories)")
	fmt.Println("  5. [environment]  JOBD_* environment variables")
	fmt.Println()

	data := pterm.TableData{{"KEY", "VALUE", "SOURCE", "FROM"}}
	for _, s := range settings {
		data = append(data, []string{
			s.Key,
			util.Truncate(fmt.Sprintf("%v", s.Value), 50),
			string(s.Source),
			s.SourcePath,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
