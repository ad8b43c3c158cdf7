package app

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/katakarn/join-db-pg-mongo/internal/config"
	"github.com/katakarn/join-db-pg-mongo/internal/etl"
)

func (a *App) rootCommand() *cobra.Command {
	var configFile, dotEnv string

	root := &cobra.Command{
		Use:   "joindb",
		Short: "Join a MongoDB collection with a relational table and write CSV",
		Long: `joindb reads every document of a MongoDB collection and every row of a
relational table, keeps the documents whose join key matches the first
column of a row, overlays the row onto the document and writes the result
as a delimited text file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.Startup(cmd.Context(), config.Options{
				File:   configFile,
				DotEnv: dotEnv,
				Flags:  cmd.Flags(),
			})
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.Shutdown()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ./joindb.yaml or ~/.config/joindb/joindb.yaml)")
	pf.StringVar(&dotEnv, "env-file", "", "dotenv file with JOINDB_* variables (default .env)")
	pf.String("collection", "", "MongoDB collection to read")
	pf.String("table", "", "relational table to read")
	pf.StringP("output", "o", "", `output file, "-" for stdout`)
	pf.String("delimiter", "", `field delimiter, "tab" for tab`)
	pf.String("encoding", "", "output character encoding (WHATWG label)")
	pf.Bool("bom", false, "prefix UTF-8 output with a byte order mark")
	pf.StringSlice("columns", nil, "output columns, in order; field=Header renames")
	pf.String("document-key", "", "document field holding the join key")
	pf.String("row-key-column", "", "row column holding the join key (default first column)")
	pf.String("strategy", "", "join strategy: nested or hash")
	pf.Duration("timeout", 0, "overall deadline for one command")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "console or json")

	root.AddCommand(
		a.runCommand(),
		a.previewCommand(),
		a.pingCommand(),
		a.discoverCommand(),
	)
	return root
}

func (a *App) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Extract, join and write the output file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.joins.Run(cmd.Context())
			if err != nil {
				return err
			}
			if a.cfg.Output.Path != etl.StdoutPath {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s (%d documents, %d rows read) in %s\n",
					res.RowsWritten, a.cfg.Output.Path, res.DocumentsRead, res.RowsRead,
					res.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
}

func (a *App) previewCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Extract and join, then print the first rows as CSV to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			_, err := a.joins.Preview(cmd.Context(), limit)
			return err
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum rows to print, 0 for all")
	return cmd
}

func (a *App) pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test both database connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results, err := a.joins.Ping(cmd.Context())

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDRIVER\tENDPOINT\tSTATUS")
			for _, r := range results {
				status := "ok " + r.Latency.Round(time.Millisecond).String()
				if r.Error != "" {
					status = "error: " + r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Driver, r.Endpoint, status)
			}
			if flushErr := tw.Flush(); flushErr != nil && err == nil {
				err = flushErr
			}
			return err
		},
	}
}

func (a *App) discoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List collections and tables with their fields as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.joins.Discover(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
}
