package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/koltyakov/flo/internal/store/sqlite"
)

func runHistory(ctx context.Context, args []string) int {
	return historyCommand(ctx, args, os.Stdout, os.Stderr)
}

func historyCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dbPath string
		limit  int
	)
	fs.StringVar(&dbPath, "db", envOr("FLO_HISTORY_DB", "./flo.db"), "History SQLite database")
	fs.IntVarP(&limit, "limit", "n", 20, "Number of deliveries to list")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if limit <= 0 {
		fmt.Fprintln(stderr, "limit must be > 0")
		return 2
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Fprintln(stderr, "db error:", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	deliveries, err := store.RecentDeliveries(ctx, limit)
	if err != nil {
		fmt.Fprintln(stderr, "list deliveries:", err)
		return 1
	}
	if len(deliveries) == 0 {
		fmt.Fprintln(stdout, "no deliveries recorded")
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DELIVERED\tRESOURCE\tBYTES\tCLIENTS")
	for _, d := range deliveries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", d.DeliveredAt.Local().Format(time.DateTime), d.ResourceURL, d.Bytes, d.Clients)
	}
	_ = tw.Flush()
	return 0
}
