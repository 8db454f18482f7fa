package rhi

// Stats are draw statistics. Translate tasks count into private copies that
// are merged into the executor totals at submission.
type Stats struct {
	// Buffers is the number of command buffers retired.
	Buffers uint64
	// Commands is the number of commands replayed.
	Commands uint64

	Draws        uint64
	Vertices     uint64
	Dispatches   uint64
	Transitions  uint64
	Copies       uint64
	Closures     uint64
	MaskSwitches uint64

	// Submissions counts successful Device.Submit calls.
	Submissions uint64
	// FailedSubmissions counts submissions that were aborted.
	FailedSubmissions uint64

	// SerialBuffers and ParallelTasks count how buffers were translated.
	SerialBuffers uint64
	ParallelTasks uint64

	// ImmediateCommands counts commands executed bottom-of-pipe.
	ImmediateCommands uint64
}

// add accumulates o into s.
func (s *Stats) add(o Stats) {
	s.Buffers += o.Buffers
	s.Commands += o.Commands
	s.Draws += o.Draws
	s.Vertices += o.Vertices
	s.Dispatches += o.Dispatches
	s.Transitions += o.Transitions
	s.Copies += o.Copies
	s.Closures += o.Closures
	s.MaskSwitches += o.MaskSwitches
	s.Submissions += o.Submissions
	s.FailedSubmissions += o.FailedSubmissions
	s.SerialBuffers += o.SerialBuffers
	s.ParallelTasks += o.ParallelTasks
	s.ImmediateCommands += o.ImmediateCommands
}
