package main

import "log"

// PollPrinter runs one polling cycle against the OctoPrint REST API. It is
// the fallback event source: while the push socket is connected it only
// resyncs the flag snapshot, so a later socket drop does not replay stale
// transitions. While disconnected it diffs consecutive snapshots and
// synthesizes the lifecycle events the socket would have delivered.
func (r *ReminderEngine) PollPrinter() {
	if r.listener != nil && r.listener.Connected() {
		if flags, ok := r.listener.PrinterFlags(); ok {
			r.pollMutex.Lock()
			r.prevFlags = flags
			r.prevFlagsValid = true
			r.sawCancelling = false
			r.pollMutex.Unlock()
		}
		return
	}

	client := r.printerClient()
	status, err := client.GetStatus()
	if err != nil {
		log.Printf("⚠️ Failed to poll printer status: %v", err)
		return
	}
	flags := status.State.Flags

	r.pollMutex.Lock()
	prev := r.prevFlags
	prevValid := r.prevFlagsValid
	if flags.Cancelling {
		r.sawCancelling = true
	}
	sawCancelling := r.sawCancelling
	if printerIdle(flags) {
		r.sawCancelling = false
	}
	r.prevFlags = flags
	r.prevFlagsValid = true
	jobName := r.pollJobName
	r.pollMutex.Unlock()

	// Capture the job name while the print runs so the completion event can
	// carry it; the job endpoint is empty again once the printer goes idle.
	if printerBusy(flags) && jobName == "" {
		if job, err := client.GetJob(); err == nil && job.Job.File.Name != "" {
			jobName = job.Job.File.Name
			r.pollMutex.Lock()
			r.pollJobName = jobName
			r.pollMutex.Unlock()
		}
	}

	if !prevValid {
		return
	}

	event, ok := diffPrinterFlags(prev, flags, sawCancelling)
	if !ok {
		return
	}

	if event.Type == EventPrintDone || event.Type == EventPrintCancelled || event.Type == EventPrintFailed {
		event.JobName = jobName
		r.pollMutex.Lock()
		r.pollJobName = ""
		r.pollMutex.Unlock()
	}

	log.Printf("🔍 Event from polling: %s (state: %s)", event.Type, status.State.Text)
	r.HandleEvent(event)
}

// printerBusy reports whether the flags describe a run in progress,
// including its pausing and cancelling phases.
func printerBusy(flags OctoPrintStateFlags) bool {
	return flags.Printing || flags.Paused || flags.Pausing || flags.Cancelling
}

// printerIdle reports whether the printer has fully settled.
func printerIdle(flags OctoPrintStateFlags) bool {
	return !printerBusy(flags)
}

// diffPrinterFlags maps one observed flag transition to a lifecycle event.
// At poll resolution at most one transition is visible per cycle. A run that
// ends without an observed cancelling phase counts as completed unless the
// error flag says otherwise; the push socket remains the authoritative
// source when it is connected.
func diffPrinterFlags(prev, cur OctoPrintStateFlags, sawCancelling bool) (PrinterEvent, bool) {
	switch {
	case !printerBusy(prev) && cur.Printing:
		return PrinterEvent{Type: EventPrintStarted}, true

	case prev.Printing && (cur.Paused || cur.Pausing):
		return PrinterEvent{Type: EventPrintPaused}, true

	case (prev.Paused || prev.Pausing) && cur.Printing:
		return PrinterEvent{Type: EventPrintResumed}, true

	case printerBusy(prev) && printerIdle(cur):
		switch {
		case sawCancelling:
			return PrinterEvent{Type: EventPrintCancelled}, true
		case cur.Error || prev.Error || cur.ClosedOrError:
			return PrinterEvent{Type: EventPrintFailed}, true
		default:
			return PrinterEvent{Type: EventPrintDone}, true
		}
	}

	return PrinterEvent{}, false
}
