// Package broadcast carries fire-and-forget session signals between instances that share one
// session: "renewed" (re-check storage) and "logout" (end the local session).
//
// Messages carry no session data. Each carries the origin id of its sender so that receivers
// can ignore their own messages.
//
// # What this package must NOT do
//
//   - Carry tokens or user data.
//   - Guarantee delivery; a dropped signal is recovered by the next storage change.
package broadcast
