package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Actual version and commit can be specified in build command with -ldflags.
var (
	version = "unknown"
	commit  = "none"
)

type buildInfo struct {
	App     string `json:"app"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	RunE: func(_ *cobra.Command, _ []string) error {
		info := buildInfo{App: app, Version: version, Commit: commit, Go: runtime.Version()}
		if viper.GetBool("json") {
			out, err := json.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		fmt.Printf("%s version: %s (commit %s, %s)\n", info.App, info.Version, info.Commit, info.Go)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
