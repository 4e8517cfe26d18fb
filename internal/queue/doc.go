// Package queue plays a document sentence by sentence through a speech
// engine. It keeps the current position, hands each natural end over to
// the next sentence without a gap and synthesizes upcoming sentences ahead
// of time.
package queue
