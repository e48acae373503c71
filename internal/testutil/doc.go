// Package testutil provides deterministic fakes for the session
// collaborators: a scripted snapshot fetcher, recording audio output,
// volume sender and display, and fixed identifiers.
//
// All fakes are safe for concurrent use so they can be shared between a
// running session loop and the test goroutine.
package testutil
