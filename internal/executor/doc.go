// Package executor runs compiled plans.
//
// One goroutine owns the loop. Each cycle walks the plan in topological
// order, gathers every node's inputs from upstream outputs of the same
// cycle, static parameters, schema defaults and the override store, executes
// the node under a per-node timeout and publishes its phase transitions. A
// failing node never aborts the cycle: its consumers receive the producer's
// declared output default instead.
//
// Between cycles the loop sleeps for the configured interval. Stop lets the
// cycle in flight finish, starts no new one and returns once the loop
// goroutine has exited and the plan's node instances are closed.
package executor
