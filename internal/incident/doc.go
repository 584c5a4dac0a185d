// Package incident provides the business boundary for Codeblue's incident
// coordination. It defines the Service (dedup, lifecycle state machine,
// responder assignment), the Store interface (persistence), the queue
// consumer, and domain models.
package incident
