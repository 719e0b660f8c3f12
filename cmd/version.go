package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Build variables, set with -ldflags at release time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the voxlog build: release version, commit, build time and the Go
runtime it was compiled with. Builds made with "go install" report the module
version and VCS revision recorded by the toolchain.`,
	Run: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("short", "s", false, "print just the version number")
}

// buildVersion fills in values missing from ldflags from the embedded build info
func buildVersion() (version, commit string) {
	version, commit = Version, GitCommit
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version, commit
	}
	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = strings.TrimPrefix(info.Main.Version, "v")
	}
	if commit == "unknown" {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
				commit = setting.Value[:7]
			}
		}
	}
	return version, commit
}

func runVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	version, commit := buildVersion()

	if short, _ := cmd.Flags().GetBool("short"); short {
		fmt.Fprintf(out, "v%s\n", version)
		return
	}

	fmt.Fprintf(out, "voxlog v%s (%s)\n", version, commit)
	fmt.Fprintf(out, "  built:   %s\n", BuildTime)
	fmt.Fprintf(out, "  runtime: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
