// Package pic models an 8-level priority interrupt controller of the Intel
// 8214 family.
//
// The controller watches eight request lines (level 0 to 7) and, when it is
// enabled and not already servicing a request, grants the highest numbered
// asserted line. A grant latches the level for the host to read, closes the
// in-service latch, drops the group-enable output so that a cascaded
// controller stops arbitrating, and pulses the interrupt output. The host
// acknowledges by writing the level it is now servicing to the status
// register, which reopens the latch and raises group-enable again.
//
// Every operation runs synchronously. The controller never spawns goroutines
// and does no locking; drive one instance from one goroutine.
//
// Typical use:
//
//	ctrl := pic.MakeBuilder().
//		WithSink(cpu).
//		Build("Board.PIC")
//
//	ctrl.SetMasterEnable(true)
//	ctrl.SetRequestLine(2, true) // cpu sees a pulse
//	level := ctrl.ReadLevel()    // 2
//	ctrl.WriteStatus(level)      // acknowledge
package pic
