package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, set from main via Execute (ldflags at build time).
var (
	buildVersion = "dev"
	buildCommit  = ""
	buildDate    = ""
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return versionRun()
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(versionCmd)
}

func versionRun() error {
	if versionJSON {
		result := map[string]string{"version": buildVersion}
		if buildCommit != "" {
			result["commit"] = buildCommit
		}
		if buildDate != "" {
			result["date"] = buildDate
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Out, string(data))
		return nil
	}

	switch {
	case buildCommit != "" && buildDate != "":
		fmt.Fprintf(ui.Out, "ait version %s (%s, %s)\n", buildVersion, shortCommit(buildCommit), buildDate)
	case buildCommit != "":
		fmt.Fprintf(ui.Out, "ait version %s (%s)\n", buildVersion, shortCommit(buildCommit))
	default:
		fmt.Fprintf(ui.Out, "ait version %s\n", buildVersion)
	}
	return nil
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
