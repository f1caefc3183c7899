package cmd

import (
	"fmt"
	"os"

	"github.com/TFMV/vfswatch/internal/filter"
	"github.com/TFMV/vfswatch/internal/upath"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// matchCmd represents the match command
var matchCmd = &cobra.Command{
	Use:   "match <filter> <path>...",
	Short: "Test a filename filter against paths",
	Long: `Compile a watcher filter and report which paths it accepts. Only the last
segment of each path is matched; a directory qualifier in the filter moves the
base directory instead.

Examples:
  vfswatch match "*.txt" /a/b.txt /a/b.txt1
  vfswatch match --base /src "pkg/*.go" main.go`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := upath.New(viper.GetString("match.base"))
		if err != nil {
			return err
		}
		out, err := newPrinter(os.Stdout, viper.GetString("format"))
		if err != nil {
			return err
		}
		records, err := matchPaths(base, args[0], args[1:])
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := out.print(record); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("base", "/", "Directory the filter is relative to")
	viper.BindPFlag("match.base", matchCmd.Flags().Lookup("base"))
}

// matchRecord is the verdict for one candidate path.
type matchRecord struct {
	Filter  string `json:"filter" yaml:"filter"`
	Base    string `json:"base" yaml:"base"`
	Path    string `json:"path" yaml:"path"`
	Matches bool   `json:"matches" yaml:"matches"`
}

func (r matchRecord) Text() string {
	verdict := "no match"
	if r.Matches {
		verdict = "match"
	}
	return fmt.Sprintf("%s: %s", r.Path, verdict)
}

// matchPaths compiles pattern relative to base and tests every candidate.
func matchPaths(base upath.Path, pattern string, candidates []string) ([]matchRecord, error) {
	compiled, extended, err := filter.Parse(base, pattern)
	if err != nil {
		return nil, err
	}
	records := make([]matchRecord, 0, len(candidates))
	for _, candidate := range candidates {
		p, err := upath.New(candidate)
		if err != nil {
			return nil, err
		}
		ok, err := compiled.Match(p)
		if err != nil {
			return nil, err
		}
		records = append(records, matchRecord{
			Filter:  compiled.String(),
			Base:    extended.String(),
			Path:    p.String(),
			Matches: ok,
		})
	}
	return records, nil
}
