package main

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/getsentry/cpuprof/internal/analysis"
	"github.com/getsentry/cpuprof/internal/pprofutil"
	"github.com/getsentry/cpuprof/internal/speedscope"
)

const (
	formatSpeedscope = "speedscope"
	formatPprof      = "pprof"
)

var (
	exportFormat string
	exportTree   string
	exportOutput string

	exportCmd = &cobra.Command{
		Use:   "export <profile file>",
		Short: "Convert a profile to speedscope or pprof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readProfileFile(args[0])
			if err != nil {
				return err
			}
			a, err := analyze(cmd.Context(), config, p, nil)
			if err != nil {
				return err
			}
			tree, err := selectTree(a, exportTree)
			if err != nil {
				return err
			}

			w := io.Writer(os.Stdout)
			if exportOutput != "" {
				f, err := os.Create(exportOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeExport(w, exportFormat, a, tree, args[0])
		},
	}
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", formatSpeedscope, "output format (speedscope or pprof)")
	exportCmd.Flags().StringVar(&exportTree, "tree", analysis.TreeCallFrames, "tree to export")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file, stdout when empty")
}

func writeExport(w io.Writer, format string, a *analysis.Analysis, tree *analysis.Tree, name string) error {
	switch format {
	case formatSpeedscope:
		o := speedscope.FromTree(a, tree, name)
		o.SortSamplesForFlamegraph()
		return jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(o)
	case formatPprof:
		return pprofutil.FromTree(a, tree).Write(w)
	}
	return fmt.Errorf("unknown format %q", format)
}
