package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jobd/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show jobd version information",
	Long: `Display version, build time, commit hash, and platform information for the jobd binary.

With --check, also ask the server at --server for its version and report
whether this client can talk to it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		check, _ := cmd.Flags().GetBool("check")

		info := version.Get()

		if jsonOutput {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("error formatting JSON: %w", err)
			}
			fmt.Println(string(output))
		} else {
			fmt.Println(info.String())
			fmt.Printf("Platform: %s\n", info.Platform)
			fmt.Printf("Go: %s\n", info.GoVersion)
		}

		if !check {
			return nil
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		health, err := c.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to reach server: %w", err)
		}
		if err := version.CheckCompatible(info.Version, health.Version); err != nil {
			pterm.Warning.Printf("Server runs %s: %v\n", health.Version, err)
			return err
		}
		pterm.Success.Printf("Server runs %s (compatible)\n", health.Version)
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
	VersionCmd.Flags().Bool("check", false, "Check compatibility with the server")
}
