package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harismuzaffer/antfleet/internal/dispatch"
)

// awaitTask blocks until the dispatcher publishes the completion or error
// event correlated to taskID, then reports it on cmd's output. Events for
// tasks other than taskID are possible in principle (a long-lived
// dispatcher serving several callers) but never occur in the CLI's
// single-task-then-stop usage, so they are simply skipped.
func awaitTask(cmd *cobra.Command, d *dispatch.Dispatcher, taskID uuid.UUID, op string) error {
	for ev := range d.Events() {
		if ev.TaskID != taskID {
			continue
		}
		if ev.Raw != nil {
			return ev.Raw
		}
		printBatchResult(cmd.OutOrStdout(), op, ev.Batch)
		if ev.Batch != nil && ev.Batch.HasFailures() {
			return fmt.Errorf("%s completed with failures", op)
		}
		return nil
	}
	return fmt.Errorf("%s: dispatcher stopped before the task completed", op)
}
