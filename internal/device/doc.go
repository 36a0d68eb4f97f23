// Package device exposes a mixer group as a device: management commands
// (reset, add-simple, load-buffer, dump, freeze) are serialised through a
// FIFO worker, and the control loop mixes through Mix.
//
// Command numbers follow the ioctl layout of the mixer device node:
// IOCBase+IOCGetOutputCount, IOCBase+IOCReset, IOCBase+IOCAddSimple and
// IOCBase+IOCLoadBuf.
package device
