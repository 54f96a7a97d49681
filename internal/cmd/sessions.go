package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"go.aimuz.me/iris/archive"
)

var (
	sessionsDir   string
	sessionsLimit int
	sessionsJSON  bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [id]",
	Short: "List archived capture sessions with their latency breakdown",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.Flags().StringVar(&sessionsDir, "dir", "", "Archive directory (default: user config dir)")
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Number of sessions to show (0 = all)")
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Print records as JSON")
}

func runSessions(cmd *cobra.Command, args []string) error {
	dir := sessionsDir
	if dir == "" {
		d, err := archive.DefaultDir()
		if err != nil {
			return err
		}
		dir = d
	}

	store, err := archive.Open(dir, 0)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		rec, err := store.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(out, rec)
	}

	recs, err := store.List(sessionsLimit)
	if err != nil {
		return err
	}
	if sessionsJSON {
		return printJSON(out, recs)
	}
	return printSessions(out, recs)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSessions(w io.Writer, recs []archive.Record) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "no sessions")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tOUTCOME\tLISTEN\tFINAL\tFIRST\tDONE\tQUESTION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("01-02 15:04:05"),
			r.Outcome,
			ms(r.Latency.Listening),
			ms(r.Latency.Finalized),
			ms(r.Latency.FirstToken),
			ms(r.Latency.Done),
			truncate(r.Transcript, 48),
		)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func ms(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
