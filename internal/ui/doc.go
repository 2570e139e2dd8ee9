// Package ui implements the live processing monitor using bubbletea's
// Elm architecture.
//
// The [Model] polls a progress source on a fixed interval and renders
// one row per active session: a percent bar, the latest message, and
// any model/channel metadata attached to the record. It implements the
// standard Init/Update/View pattern; refreshes arrive as tick messages
// so rendering never blocks the pipeline.
//
// Keyboard bindings are minimal (q to quit, r to force a refresh) with
// contextual help via charmbracelet/bubbles/help.
package ui
