package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bsm/docset"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var viewCmd = &cobra.Command{
	Use:   "view <path>",
	Short: "Print a summary of a container file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runView(cmd.OutOrStdout(), args[0])
	},
}

func runView(w io.Writer, path string) error {
	c, err := docset.Open(path, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}

	count := c.Len()
	var avg int64
	if count > 0 {
		avg = int64(float64(fi.Size())/float64(count) + 0.5)
	}

	fmt.Fprintln(w, path)
	fmt.Fprintf(w, "Count: %d, Size: %s, Avg: %s/sample\n\n", count, formatSize(fi.Size()), formatSize(avg))

	if meta := c.Meta(); len(meta) != 0 {
		for _, e := range meta {
			fmt.Fprintf(w, "%s: %v\n", e.Key, e.Value)
		}
		fmt.Fprintln(w)
	}

	for i := 0; i < count && i < 2; i++ {
		if err := printSample(w, c, i); err != nil {
			return err
		}
	}
	if count > 2 {
		fmt.Fprintln(w, "...")
		if err := printSample(w, c, count-1); err != nil {
			return err
		}
	}
	return nil
}

func printSample(w io.Writer, c docset.Container, i int) error {
	doc, err := c.Read(i)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Sample %d\n", i)
	printDoc(w, doc)
	return nil
}

func printDoc(w io.Writer, doc bson.D) {
	for _, e := range doc {
		var v string
		switch t := e.Value.(type) {
		case string:
			v = fmt.Sprintf("%q", t)
		case docset.NDArray:
			v = t.String()
		case primitive.Binary:
			v = fmt.Sprintf("binary(size=%s)", formatSize(int64(len(t.Data))))
		default:
			v = fmt.Sprintf("%v", t)
		}
		fmt.Fprintf(w, "    %q: %s\n", e.Key, v)
	}
}

var sizeLabels = []string{"B", "KB", "MB", "GB", "TB", "PB"}

func formatSize(n int64) string {
	size, unit := float64(n), 0
	for size >= 1024 && unit+1 < len(sizeLabels) {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d %s", n, sizeLabels[unit])
	}
	return fmt.Sprintf("%.1f %s", size, sizeLabels[unit])
}
