// Package cli implements the docvec command line.
package cli

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nickcecere/docvec/internal/config"
	"github.com/nickcecere/docvec/internal/ui"
)

// buildInfo is filled from ldflags by main.
type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

var (
	build = buildInfo{Version: "dev", Commit: "none", Date: "unknown", Go: runtime.Version()}

	cfgFile string
	debug   bool
)

// SetVersionInfo records the values injected at build time.
func SetVersionInfo(version, commit, date string) {
	build.Version, build.Commit, build.Date = version, commit, date
}

const (
	groupDocuments = "documents"
	groupSearch    = "search"
	groupAdmin     = "admin"
)

var rootCmd = &cobra.Command{
	Use:   "docvec",
	Short: "Document ingestion and semantic search",
	Long: `docvec stores documents by content, extracts their text and indexes it
for semantic search.

Uploads are deduplicated by content hash. Vectorization runs in the
background and can be retried at any time.

Examples:
  docvec upload report.pdf --description "Q3 report"
  docvec import ./docs
  docvec search "quarterly revenue"
  docvec search "revenue" --file 12`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetDebug(debug)
		if err := config.Load(cfgFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log.Debug("Configuration loaded", "file", config.ConfigFilePath(), "command", cmd.Name())
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.InitLogger()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/docvec/config.yaml)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))

	rootCmd.AddGroup(
		&cobra.Group{ID: groupDocuments, Title: "Documents:"},
		&cobra.Group{ID: groupSearch, Title: "Search:"},
		&cobra.Group{ID: groupAdmin, Title: "Administration:"},
	)

	addGrouped(groupDocuments, uploadCmd, importCmd, watchCmd, listCmd, showCmd, describeCmd, exportCmd, deleteCmd)
	addGrouped(groupSearch, vectorizeCmd, searchCmd)
	addGrouped(groupAdmin, statusCmd, configCmd, versionCmd)
}

func addGrouped(group string, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.GroupID = group
		rootCmd.AddCommand(c)
	}
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			return printJSON(build)
		}
		fmt.Printf("docvec %s\n", build.Version)
		fmt.Printf("  commit: %s\n", build.Commit)
		fmt.Printf("  built:  %s\n", build.Date)
		fmt.Printf("  go:     %s\n", build.Go)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")
}
