package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mrlokans/storesync/internal/entities"
)

func printJob(w io.Writer, job *entities.SyncJob) {
	fmt.Fprintf(w, "Job:        %s\n", job.ID)
	fmt.Fprintf(w, "Resource:   %s\n", job.ResourceType)
	fmt.Fprintf(w, "Status:     %s\n", job.Status)
	fmt.Fprintf(w, "Progress:   %d%%\n", job.Progress)
	fmt.Fprintf(w, "Processed:  %s records (%s failed)\n", humanize.Comma(int64(job.Processed)), humanize.Comma(int64(job.FailedItems)))
	if job.Resumed {
		fmt.Fprintf(w, "Resumed:    yes\n")
	}
	fmt.Fprintf(w, "Created:    %s\n", describeTime(&job.CreatedAt))
	if job.StartedAt != nil && job.CompletedAt != nil {
		fmt.Fprintf(w, "Duration:   %s\n", job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond))
	}
	if job.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", job.Error)
	}
}

func printCheckpoint(w io.Writer, cp *entities.Checkpoint) {
	fmt.Fprintf(w, "Resource:    %s\n", cp.ResourceType)
	if cp.LastCursor != nil {
		fmt.Fprintf(w, "Cursor:      %s\n", *cp.LastCursor)
	} else {
		fmt.Fprintf(w, "Cursor:      (none, next run starts from the first page)\n")
	}
	if cp.LastEntityID != nil {
		fmt.Fprintf(w, "Last entity: %s\n", *cp.LastEntityID)
	}
	fmt.Fprintf(w, "Last sync:   %s\n", describeTime(cp.LastSyncTime))
	if cp.Watermark != nil {
		fmt.Fprintf(w, "Pass began:  %s\n", describeTime(cp.Watermark))
	}
	if cp.JobID != "" {
		fmt.Fprintf(w, "Job:         %s\n", cp.JobID)
	}
}

func printEvents(w io.Writer, events []entities.SyncEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No batch events recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tSTATUS\tITEMS\tPERSISTED\tFAILED\tWHEN\tERROR")
	for _, e := range events {
		failed := e.TransformFailures + e.NormalizedFailures + e.MirrorFailures
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
			e.Page, e.Status, e.Items, e.Persisted, failed, humanize.Time(e.CreatedAt), e.Error)
	}
	tw.Flush()
}

func describeTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", t.Format(time.RFC3339), humanize.Time(*t))
}
