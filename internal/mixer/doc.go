// Package mixer implements the actuator mixing engine.
//
// A Group holds an ordered list of mixers. Each mixer reads one or more
// control inputs through a Resolver, scales them and writes one output slot.
// Outputs are assigned in the order mixers were added and are never
// reordered.
//
// Mixers are added either from a packed binary record (one simple mixer) or
// from the line-oriented text protocol:
//
//	M: 2
//	O: 10000 10000 0 -10000 10000
//	S: 0 0 10000 10000 0 -10000 10000
//	S: 0 1 -10000 -10000 0 -10000 10000
//	Z:
//
// Scaler fields in text are integers in units of 1/10000.
//
// Nothing on the mixing path (Scaler.Apply, ControlFrame.Fetch,
// SimpleMixer.Mix, Group.Mix) allocates or blocks. Group is not safe for
// concurrent use; the owning device serialises configuration and mixing.
package mixer
