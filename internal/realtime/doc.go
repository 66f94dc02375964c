// Package realtime is the push side of the chat: it keeps, per channel, the
// set of live connections, fans events out to them, and runs the lifecycle
// of each connection.
//
// A connection goes through
//
//	Connecting → Authenticating → Authorizing → Active → Closing → Closed
//
// and is present in the Registry only while Active. Every inbound message is
// persisted first and broadcast second; a failed send to one peer prunes
// that peer and never fails the broadcast for the others.
//
// One Registry is created per process and shared by every session.
package realtime
