// Package scheduler drives the check cycle on a fixed schedule.
//
// robfig/cron only produces triggers. Execution happens on a single worker
// goroutine fed by a one-slot queue, so:
//   - one run starts immediately on Start
//   - no two runs ever overlap
//   - ticks that arrive while a run is in progress collapse into at most
//     one pending run (the rest are counted as coalesced)
package scheduler
