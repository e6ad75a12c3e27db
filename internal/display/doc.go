// Package display is the primary display session controller.
//
// A Session owns display bring-up and teardown, the session flags (paused,
// secure display active, skip prepare, boot animation completed, handle
// refresh) and dispatch of out-of-band operations. Frames run through the
// pipeline under the session mutex, so API calls and the idle refresh timer
// never interleave with a prepare/commit cycle.
//
// Collaborators that may be missing on a given system (CPU hint, boot probe,
// invalidate channel) are optional; the features that need them degrade
// silently.
package display
