// Package service runs job requests end to end.
//
// Worker.Handle decodes one request and always writes exactly one response
// line. A submission is acknowledged with a placeholder and then processed
// by a Task:
//
//	Worker            Executor              Runner             Callback
//	  |                  |                     |                   |
//	  | ack ------------>| stdout              |                   |
//	  | Execute(job) --->| Args() ------------>| os/exec           |
//	  |                  |<--- Result ---------|                   |
//	  |<-- ItemResult ---|                     |                   |
//	  | Aggregate                                                  |
//	  | Deliver ------------------------------------------------->| POST, retry
//	  | FallbackStore.Save when delivery fails                     |
//
// Invariants:
//   - Items run one at a time in ascending index order.
//   - A failing item never aborts the others.
//   - Every submission ends either delivered, stored in the fallback
//     directory or reported as lost in the log.
//   - The tool is started with an argument vector, never through a shell.
//
// Redeliverer drains the fallback directory later, once the callback is
// reachable again.
package service
