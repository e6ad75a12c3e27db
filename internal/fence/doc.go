// Package fence tracks the lifetime of acquire/release/retire synchronization
// handles passed between the compositing client, the controller and the
// display driver.
//
// Every descriptor that enters the controller is terminated by exactly one of:
//   - Release: ownership moves to the driver, which waits on it
//   - Dup then Close: the sync point is forwarded through a new descriptor
//   - Close: dropped without waiting (no composition happened)
//
// A consumed fence rejects further use with ErrConsumed, so a descriptor can
// never be closed twice or closed after the driver took it.
package fence
