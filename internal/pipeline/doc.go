// Package pipeline implements the two-phase layer-stack protocol of a display.
//
// Each frame goes Idle → Prepared → Committed → Idle:
//   - Prepare allocates a stack from the frame request, validates it, assigns
//     hardware planes and decides whether the client should be asked to redraw.
//   - Commit moves the acquire fences into the stack, hands it to the driver,
//     then adopts the retire/release fences the driver produced.
//
// When the display is paused both phases short-circuit: Prepare marks every
// layer for GPU bypass and Commit consumes the fences without composing,
// forwarding the output buffer fence as the retire fence, then flushes.
//
// Error handling:
//   - Bad layer count or geometry → ErrAllocation
//   - Unsupported layer configuration → ErrValidation
//   - Driver commit/post-commit failure → wrapped driver error, no cache update
//   - Paused flush failure → logged only
package pipeline
