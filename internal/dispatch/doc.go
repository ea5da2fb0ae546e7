// Package dispatch runs the per-job coordination tick and cleans up runs
// abandoned by a former lock holder.
//
// One Loop exists per job assigned to this instance. Each tick:
//   - checks the job lock locally; if it is invalid, tries one re-acquisition
//     and skips the tick when that fails
//   - after any (re)acquisition, reaps executions left running by the
//     previous holder before doing anything else
//   - skips when the latest instance still has a running execution
//   - otherwise asks the engine to start the next instance, tagged with the
//     lock's fencing version
//
// Reaping waits in fixed poll increments up to a grace period (twice the
// lease by default) for a running execution to finish on its own. If it is
// still running afterwards, every running or stopping step and the execution
// itself are overwritten to stopped with an end time.
//
// Error handling:
//   - Loop.Run never lets an error or panic escape; it logs and returns
//   - a failed re-acquisition is a skipped tick, not an error
//   - reaping honours context cancellation so shutdown is not held up
package dispatch
