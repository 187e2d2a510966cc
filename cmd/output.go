package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/lambda-feedback/shepherd/internal/process"
	"github.com/lambda-feedback/shepherd/internal/supervisor"
)

func writeSnapshots(w io.Writer, format string, snapshots []process.Snapshot) error {
	if snapshots == nil {
		snapshots = []process.Snapshot{}
	}

	switch format {
	case "json":
		return writeJSON(w, snapshots)
	case "yaml":
		return yaml.NewEncoder(w).Encode(snapshots)
	case "table", "":
		return writeSnapshotTable(w, snapshots, time.Now())
	}

	return fmt.Errorf("unknown output format: %s", format)
}

func writeSnapshotTable(w io.Writer, snapshots []process.Snapshot, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)

	fmt.Fprintln(tw, "NAME\tID\tSTATE\tPID\tUPTIME\tRESTARTS\tMEMORY\tLAST EXIT")

	for _, s := range snapshots {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			s.Name,
			s.Instance,
			s.State,
			dash(s.PID != 0, strconv.Itoa(s.PID)),
			dash(s.StartedAt != nil, uptime(s.StartedAt, now)),
			s.Restarts,
			dash(s.Memory != 0, humanize.IBytes(s.Memory)),
			dash(s.LastExit != nil, lastExit(s.LastExit)),
		)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	// errors are too long for the table
	for _, s := range snapshots {
		if s.LastError != "" {
			fmt.Fprintf(w, "\n%s[%d]: %s\n", s.Name, s.Instance, s.LastError)
		}
	}

	return nil
}

func writeReloadResult(w io.Writer, format string, result *supervisor.ReloadResult) error {
	switch format {
	case "json":
		return writeJSON(w, result)
	case "yaml":
		return yaml.NewEncoder(w).Encode(result)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "added\t%s\n", list(result.Added))
		fmt.Fprintf(tw, "removed\t%s\n", list(result.Removed))
		fmt.Fprintf(tw, "restarted\t%s\n", list(result.Restarted))
		fmt.Fprintf(tw, "updated\t%s\n", list(result.Updated))
		fmt.Fprintf(tw, "unchanged\t%s\n", list(result.Unchanged))
		return tw.Flush()
	}

	return fmt.Errorf("unknown output format: %s", format)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func uptime(startedAt *time.Time, now time.Time) string {
	if startedAt == nil {
		return ""
	}
	return strings.TrimSpace(humanize.RelTime(*startedAt, now, "", ""))
}

func lastExit(evt *process.ExitEvent) string {
	if evt == nil {
		return ""
	}
	return evt.String()
}

func dash(ok bool, s string) string {
	if !ok {
		return "-"
	}
	return s
}

func list(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
