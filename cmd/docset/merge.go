package main

import (
	"log/slog"
	"os"

	"github.com/bsm/docset"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <input> <input>... <output>",
	Short: "Merge two or more containers into a new one",
	Long: `Merge concatenates two or more container files and writes every record,
in order, into a new container at the output path. The output must not
exist yet. Input metadata is not carried over.`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge(args[:len(args)-1], args[len(args)-1])
	},
}

func runMerge(inputs []string, output string) error {
	if _, err := os.Stat(output); err == nil {
		return errors.Errorf("refusing to overwrite %s", output)
	} else if !os.IsNotExist(err) {
		return err
	}

	sets := make([]docset.Set, 0, len(inputs))
	for _, path := range inputs {
		c, err := docset.Open(path, nil)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer c.Close()

		slog.Info("opened input", "path", path, "count", c.Len())
		sets = append(sets, c)
	}
	view := docset.NewConcatSet(sets...)

	w, err := docset.Create(output, nil)
	if err != nil {
		return err
	}
	defer w.Close()

	for i := 0; i < view.Len(); i++ {
		doc, err := view.Read(i)
		if err != nil {
			return err
		}
		if err := w.Write(doc); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	slog.Info("merged", "output", output, "count", view.Len())
	return nil
}
