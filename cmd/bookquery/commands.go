package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nainya/bookquery/pkg/book"
	"github.com/nainya/bookquery/pkg/catalog"
	"github.com/nainya/bookquery/pkg/seed"
	"github.com/nainya/bookquery/pkg/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered queries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeEntries(cmd.OutOrStdout(), catalog.Bookstore().Entries())
	},
}

var runCmd = &cobra.Command{
	Use:   "run <name>...",
	Short: "Execute queries by name and print their results as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cat := catalog.Bookstore()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		for _, name := range args {
			res, err := cat.Execute(ctx, name, st)
			if err != nil {
				return err
			}
			out, err := resultJSON(name, res)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
		}
		return nil
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain <name>",
	Short: "Show how the store plans a find query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := catalog.Bookstore().Explain(ctx, args[0], st)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), report)
	},
}

var dropFirst bool

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load books from a YAML file, or the built-in dataset",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file := cfg.Seed.File
		if len(args) == 1 {
			file = args[0]
		}
		records, err := loadRecords(file)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if dropFirst {
			if err := st.Drop(ctx); err != nil {
				return err
			}
		}
		ids, err := seed.Into(ctx, st, records)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d books into %s\n", len(ids), st.Collection())
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&dropFirst, "drop", false, "Remove existing documents and indexes first")
}

// loadRecords reads a YAML dataset, or returns the built-in one when file
// is empty.
func loadRecords(file string) ([]book.Record, error) {
	if file == "" {
		return seed.Default(), nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return seed.Load(f)
}

func resultJSON(name string, res *catalog.Result) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"name": name,
		"kind": res.Kind.String(),
	}
	switch {
	case res.Cursor != nil:
		docs, err := store.Documents(res.Cursor)
		if err != nil {
			return nil, err
		}
		if docs == nil {
			docs = []store.Document{}
		}
		out["documents"] = docs
		out["count"] = len(docs)
	case res.Index.Name != "":
		out["index"] = res.Index.Name
		out["created"] = res.Index.Created
	default:
		out["count"] = res.Count
	}
	return out, nil
}

func writeEntries(w io.Writer, entries []catalog.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Kind, e.Description)
	}
	return tw.Flush()
}

func writeReport(w io.Writer, r *store.ExplainReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Collection:\t%s\n", r.Collection)
	fmt.Fprintf(tw, "Stage:\t%s\n", r.Stage)
	if r.Index != "" {
		fmt.Fprintf(tw, "Index:\t%s\n", r.Index)
	}
	fmt.Fprintf(tw, "Documents returned:\t%d\n", r.DocsReturned)
	fmt.Fprintf(tw, "Execution time:\t%s\n", r.Duration)
	fmt.Fprintf(tw, "Statement:\t%s\n", r.Statement)
	for i, step := range r.Plan {
		fmt.Fprintf(tw, "Plan %d:\t%s\n", i+1, step)
	}
	return tw.Flush()
}
