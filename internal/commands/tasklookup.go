package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"nexustodo/internal/app"
	"nexustodo/internal/backend/nexusapi"
	"nexustodo/internal/exitcode"
	"nexustodo/internal/service"
	"nexustodo/internal/tasksync"
	"nexustodo/internal/transport"
)

// register makes sure the device has an identity before a service call.
func register(ctx context.Context, a *app.App, errOut io.Writer) bool {
	if _, err := a.EnsureRegistered(ctx); err != nil {
		fmt.Fprintf(errOut, "error: device error: %s\n", nexusapi.Message(err))
		return false
	}
	return true
}

// loadSnapshot refreshes the task set. With offline set, the persisted cache
// is used without contacting the service.
// Returns the snapshot and Success, StaleData (cache served after a failed
// sync), or a failure code after printing the error.
func loadSnapshot(ctx context.Context, a *app.App, offline, silent bool, errOut io.Writer) (tasksync.Snapshot, int) {
	if offline {
		return a.Sync.Current(), exitcode.Success
	}
	if !register(ctx, a, errOut) {
		return tasksync.Snapshot{}, exitcode.DeviceError
	}

	snap, err := a.Sync.Sync(ctx, tasksync.Options{Silent: silent})
	switch {
	case err == nil:
		return snap, exitcode.Success
	case errors.Is(err, tasksync.ErrStale):
		return snap, exitcode.StaleData
	default:
		return snap, backendError(errOut, err)
	}
}

// findTask loads the task set and resolves the reference in args.
func findTask(ctx context.Context, a *app.App, args []string, errOut io.Writer) (service.Task, int) {
	ref, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return service.Task{}, exitcode.UserError
	}

	snap, code := loadSnapshot(ctx, a, false, true, errOut)
	if code != exitcode.Success {
		if code == exitcode.StaleData {
			fmt.Fprintln(errOut, "error: backend error: service unavailable, task not changed")
			return service.Task{}, exitcode.BackendError
		}
		return service.Task{}, code
	}

	task, err := ref.Resolve(snap.Tasks)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return service.Task{}, exitcode.UserError
	}
	return task, exitcode.Success
}

// refresh re-syncs after a mutation so the cache reflects it.
// Failures only affect the cache and are not reported.
func refresh(ctx context.Context, a *app.App) {
	_, _ = a.Sync.Sync(ctx, tasksync.Options{Silent: true})
}

// backendError prints err and returns the matching exit code.
func backendError(errOut io.Writer, err error) int {
	switch {
	case errors.Is(err, transport.ErrCancelled) || errors.Is(err, context.Canceled):
		fmt.Fprintln(errOut, "error: cancelled")
	case nexusapi.IsNotFound(err):
		fmt.Fprintf(errOut, "error: %s\n", nexusapi.Message(err))
		return exitcode.UserError
	default:
		fmt.Fprintf(errOut, "error: backend error: %s\n", nexusapi.Message(err))
	}
	return exitcode.BackendError
}

// printOK prints the success marker unless quiet.
func printOK(quiet bool, out io.Writer) int {
	if !quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
