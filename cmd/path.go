package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/TFMV/vfswatch/internal/upath"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// pathCmd represents the path command
var pathCmd = &cobra.Command{
	Use:   "path <path>...",
	Short: "Show how virtual paths are normalized and decomposed",
	Long: `Normalize each argument the way watchers do and print its parts.

Examples:
  vfswatch path '/a//b/./c/../d.txt'
  vfswatch path --format yaml 'dir\file.tar.gz'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := newPrinter(os.Stdout, viper.GetString("format"))
		if err != nil {
			return err
		}
		for _, arg := range args {
			record, err := describePath(arg)
			if err != nil {
				return err
			}
			if err := out.print(record); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pathCmd)
}

// pathRecord holds the decomposition of one path.
type pathRecord struct {
	Input          string   `json:"input" yaml:"input"`
	Path           string   `json:"path" yaml:"path"`
	Absolute       bool     `json:"absolute" yaml:"absolute"`
	Directory      string   `json:"directory" yaml:"directory"`
	Name           string   `json:"name" yaml:"name"`
	NameWithoutExt string   `json:"name_without_extension" yaml:"name_without_extension"`
	Extension      string   `json:"extension" yaml:"extension"`
	FirstDirectory string   `json:"first_directory" yaml:"first_directory"`
	Rest           string   `json:"rest" yaml:"rest"`
	Segments       []string `json:"segments" yaml:"segments"`
}

func (r pathRecord) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.Path)
	fmt.Fprintf(&b, "  absolute:   %t\n", r.Absolute)
	fmt.Fprintf(&b, "  directory:  %q\n", r.Directory)
	fmt.Fprintf(&b, "  name:       %q\n", r.Name)
	fmt.Fprintf(&b, "  stem:       %q\n", r.NameWithoutExt)
	fmt.Fprintf(&b, "  extension:  %q\n", r.Extension)
	fmt.Fprintf(&b, "  first:      %q\n", r.FirstDirectory)
	fmt.Fprintf(&b, "  rest:       %q\n", r.Rest)
	fmt.Fprintf(&b, "  segments:   %s", strings.Join(r.Segments, ", "))
	return b.String()
}

func describePath(input string) (pathRecord, error) {
	p, err := upath.New(input)
	if err != nil {
		return pathRecord{}, err
	}
	record := pathRecord{Input: input, Path: p.String(), Absolute: p.IsAbsolute()}

	dir, err := p.Dir()
	if err != nil {
		return pathRecord{}, err
	}
	record.Directory = dir.String()
	if record.Name, err = p.Name(); err != nil {
		return pathRecord{}, err
	}
	if record.NameWithoutExt, err = p.NameWithoutExtension(); err != nil {
		return pathRecord{}, err
	}
	if record.Extension, err = p.ExtensionWithDot(); err != nil {
		return pathRecord{}, err
	}
	first, rest, err := p.FirstDirectory()
	if err != nil {
		return pathRecord{}, err
	}
	record.FirstDirectory, record.Rest = first, rest.String()
	if record.Segments, err = p.Split(); err != nil {
		return pathRecord{}, err
	}
	return record, nil
}
