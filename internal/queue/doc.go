// Package queue holds admitted alerts between the poll loop and the
// renderer. Select applies the per-cycle cap; Queue bounds how many
// selected alerts may wait for rendering, evicting the oldest.
package queue
