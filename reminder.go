package main

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// ReminderStore is the engine's view of the database: the per-tick settings
// snapshot, the snooze state and the history log.
type ReminderStore interface {
	Snapshot() (*Settings, error)
	GetActiveSnooze() (*SnoozeSession, error)
	ClearSnooze() error
	AddHistory(record ReminderRecord) error
}

// ReminderEngine tracks when a print finished and periodically pushes "time
// since finish" reminders until the printer is busy again. Event handlers
// and ticks are serialized under one mutex, so the completion state never
// sees concurrent mutation.
type ReminderEngine struct {
	store     ReminderStore
	scheduler Scheduler
	clock     Clock
	listener  *PushListener
	popups    PopupBroadcaster

	mutex      sync.Mutex
	octoprint  *OctoPrintClient
	finishedAt time.Time
	pausedAt   time.Time
	pauseAccum time.Duration
	jobName    string

	// polling monitor state, see monitor.go
	pollMutex      sync.Mutex
	prevFlags      OctoPrintStateFlags
	prevFlagsValid bool
	sawCancelling  bool
	pollJobName    string
}

// EngineStatus is the engine state surfaced to the dashboard.
type EngineStatus struct {
	Enabled        bool           `json:"enabled"`
	EpisodeActive  bool           `json:"episode_active"`
	JobName        string         `json:"job_name,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
	Paused         bool           `json:"paused"`
	ElapsedSeconds int64          `json:"elapsed_seconds"`
	ElapsedDisplay string         `json:"elapsed_display"`
	Tier           string         `json:"tier,omitempty"`
	ScheduleActive bool           `json:"schedule_active"`
	PushConnected  bool           `json:"push_connected"`
	Snooze         *SnoozeSession `json:"snooze,omitempty"`
}

// NewReminderEngine creates the engine with the production scheduler and
// clock.
func NewReminderEngine(store ReminderStore, client *OctoPrintClient) *ReminderEngine {
	return &ReminderEngine{
		store:     store,
		scheduler: NewTickerScheduler(),
		clock:     systemClock{},
		octoprint: client,
	}
}

// SetListener attaches the push socket listener used for event delivery and
// the cached busy probe.
func (r *ReminderEngine) SetListener(listener *PushListener) {
	r.listener = listener
}

// SetPopupBroadcaster attaches the dashboard hub used by the popup sink.
func (r *ReminderEngine) SetPopupBroadcaster(popups PopupBroadcaster) {
	r.popups = popups
}

// Stop cancels any running reminder schedule.
func (r *ReminderEngine) Stop() {
	r.scheduler.Cancel()
}

// printerClient returns the current OctoPrint client. Settings updates swap
// it, so callers must not hold on to it between cycles.
func (r *ReminderEngine) printerClient() *OctoPrintClient {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.octoprint
}

// HandleEvent applies one lifecycle event to the completion state machine.
// Safe to call from any goroutine.
func (r *ReminderEngine) HandleEvent(event PrinterEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	switch event.Type {
	case EventPrintDone:
		r.onPrintDone(event)
	case EventPrintPaused:
		r.onPrintPaused()
	case EventPrintResumed:
		r.onPrintResumed()
	case EventPrintStarted, EventPrintCancelled, EventPrintFailed:
		r.resetLocked(event.Type)
	case EventSettingsUpdated:
		r.onSettingsUpdated()
	default:
		// Not a lifecycle event, nothing to do
	}
}

// onPrintDone begins a new completion episode. A completion while an episode
// is already active simply restarts it.
func (r *ReminderEngine) onPrintDone(event PrinterEvent) {
	settings, err := r.store.Snapshot()
	if err != nil {
		log.Printf("❌ Failed to load settings on print completion: %v", err)
		return
	}
	if !settings.Enabled {
		log.Printf("💤 Print finished but reminders are disabled")
		return
	}

	r.finishedAt = r.clock.Now()
	r.pausedAt = time.Time{}
	r.pauseAccum = 0
	r.jobName = event.JobName

	interval := time.Duration(settings.IntervalSeconds) * time.Second
	r.scheduler.Start(interval, r.tick)

	log.Printf("🎉 Print finished (%s), reminding every %v after a %ds delay",
		displayJob(event.JobName), interval, settings.StartDelaySeconds)
}

func (r *ReminderEngine) onPrintPaused() {
	if r.finishedAt.IsZero() {
		return
	}
	if !r.pausedAt.IsZero() {
		log.Printf("⚠️ Pause event while already paused, ignoring")
		return
	}
	r.pausedAt = r.clock.Now()
}

func (r *ReminderEngine) onPrintResumed() {
	if r.finishedAt.IsZero() {
		return
	}
	if r.pausedAt.IsZero() {
		log.Printf("⚠️ Resume event without a matching pause, ignoring")
		return
	}
	r.pauseAccum += r.clock.Now().Sub(r.pausedAt)
	r.pausedAt = time.Time{}
}

// resetLocked returns the engine to idle: schedule stopped, episode and
// snooze cleared. Caller holds the mutex.
func (r *ReminderEngine) resetLocked(reason string) {
	if r.finishedAt.IsZero() && !r.scheduler.Active() {
		return
	}

	r.scheduler.Cancel()
	r.finishedAt = time.Time{}
	r.pausedAt = time.Time{}
	r.pauseAccum = 0
	r.jobName = ""

	if err := r.store.ClearSnooze(); err != nil {
		log.Printf("⚠️ Failed to clear snooze state: %v", err)
	}

	log.Printf("✅ Reminder cycle stopped (%s)", reason)
}

// onSettingsUpdated re-reads settings, swaps the OctoPrint client and, when
// an episode is active, restarts the schedule with the current interval.
func (r *ReminderEngine) onSettingsUpdated() {
	settings, err := r.store.Snapshot()
	if err != nil {
		log.Printf("❌ Failed to reload settings: %v", err)
		return
	}

	r.octoprint = NewOctoPrintClient(settings.OctoPrintURL, settings.OctoPrintAPIKey)
	if r.listener != nil {
		r.listener.UpdateClient(r.octoprint)
	}

	if r.finishedAt.IsZero() {
		return
	}
	if !settings.Enabled {
		r.resetLocked("reminders disabled")
		return
	}

	interval := time.Duration(settings.IntervalSeconds) * time.Second
	r.scheduler.Start(interval, r.tick)
	log.Printf("🔄 Settings updated, reminder interval now %v", interval)
}

// elapsedLocked returns effective elapsed seconds: wall time since the
// finish minus accumulated pause time, frozen while a pause is open, floored
// and clamped to non-negative. Caller holds the mutex and has checked that
// an episode is active.
func (r *ReminderEngine) elapsedLocked(now time.Time) int64 {
	effective := now
	if !r.pausedAt.IsZero() {
		effective = r.pausedAt
	}

	seconds := int64((effective.Sub(r.finishedAt) - r.pauseAccum) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return seconds
}

// tick runs one reminder cycle: probe the printer, gate on delay and snooze,
// then decompose, render and dispatch.
func (r *ReminderEngine) tick() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.printerBusyNow() {
		log.Printf("✅ Printer is busy again, stopping reminders")
		r.scheduler.Cancel()
		return
	}

	// Covers a tick racing a reset
	if r.finishedAt.IsZero() {
		return
	}

	settings, err := r.store.Snapshot()
	if err != nil {
		log.Printf("❌ Failed to load settings for reminder tick: %v", err)
		return
	}

	elapsed := r.elapsedLocked(r.clock.Now())
	if elapsed < int64(settings.StartDelaySeconds) {
		return
	}

	snooze, err := r.store.GetActiveSnooze()
	if err != nil {
		log.Printf("⚠️ Failed to check snooze state: %v", err)
	} else if snooze != nil {
		log.Printf("💤 Reminders snoozed until %s", snooze.ExpiresAt.Format(time.Kitchen))
		return
	}

	decomposed := Decompose(elapsed)
	tier := SelectTier(decomposed)

	message, err := RenderTemplate(settings.TemplateForTier(tier), decomposed.Fields())
	if err != nil {
		log.Printf("⚠️ Skipping reminder, %v", err)
		return
	}

	meta := ReminderMeta{
		JobName:        r.jobName,
		FinishedAt:     r.finishedAt,
		ElapsedSeconds: elapsed,
		Tier:           tier,
	}

	delivered := r.dispatch(message, meta, settings)
	if len(delivered) == 0 {
		return
	}

	record := ReminderRecord{
		JobName:        r.jobName,
		FinishedAt:     r.finishedAt,
		ElapsedSeconds: elapsed,
		Tier:           tier,
		Message:        message,
		Sinks:          strings.Join(delivered, ","),
		SentAt:         r.clock.Now(),
	}
	if err := r.store.AddHistory(record); err != nil {
		log.Printf("⚠️ Failed to record reminder history: %v", err)
	}
}

// printerBusyNow reports whether the printer is actively printing, using the
// push socket's cached flags when live and a REST probe otherwise. Probe
// errors count as not busy so reminders degrade gracefully instead of
// silently dying.
func (r *ReminderEngine) printerBusyNow() bool {
	if r.listener != nil {
		if flags, ok := r.listener.PrinterFlags(); ok {
			return flags.Printing
		}
	}

	printing, err := r.octoprint.IsPrinting()
	if err != nil {
		log.Printf("⚠️ Could not check printer state: %v", err)
		return false
	}
	return printing
}

// dispatch sends the message to every enabled sink independently and returns
// the names of the sinks that accepted it.
func (r *ReminderEngine) dispatch(message string, meta ReminderMeta, settings *Settings) []string {
	var delivered []string
	for _, sink := range r.activeSinks(settings) {
		if err := sink.Send(message, meta); err != nil {
			log.Printf("❌ Failed to send reminder via %s: %v", sink.Name(), err)
			continue
		}
		delivered = append(delivered, sink.Name())
	}

	if len(delivered) > 0 {
		log.Printf("🔔 Reminder sent via %s: %s", strings.Join(delivered, ", "), message)
	}
	return delivered
}

// activeSinks builds the sink list for one dispatch from the settings
// snapshot.
func (r *ReminderEngine) activeSinks(settings *Settings) []Sink {
	var sinks []Sink
	if settings.SendLCD {
		sinks = append(sinks, &lcdSink{client: r.octoprint})
	}
	if settings.SendPopup && r.popups != nil {
		sinks = append(sinks, &popupSink{broadcaster: r.popups})
	}
	if settings.WebhookEnabled && settings.WebhookURL != "" {
		client := NewWebhookClient(settings.WebhookURL, WebhookTimeout, settings.WebhookUsername, settings.WebhookPassword)
		sinks = append(sinks, &webhookSink{client: client})
	}
	return sinks
}

// SendTestReminder renders a sample reminder through the live pipeline and
// dispatches it to the enabled sinks. Used by the dashboard's test button.
func (r *ReminderEngine) SendTestReminder() (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	settings, err := r.store.Snapshot()
	if err != nil {
		return "", fmt.Errorf("failed to load settings: %w", err)
	}

	elapsed := int64(settings.StartDelaySeconds)
	if !r.finishedAt.IsZero() {
		elapsed = r.elapsedLocked(r.clock.Now())
	}

	decomposed := Decompose(elapsed)
	tier := SelectTier(decomposed)

	message, err := RenderTemplate(settings.TemplateForTier(tier), decomposed.Fields())
	if err != nil {
		return "", err
	}

	meta := ReminderMeta{
		JobName:        r.jobName,
		FinishedAt:     r.finishedAt,
		ElapsedSeconds: elapsed,
		Tier:           tier,
	}

	delivered := r.dispatch(message, meta, settings)
	if len(delivered) == 0 {
		return "", fmt.Errorf("no sinks accepted the test reminder")
	}
	return message, nil
}

// Status returns the engine state for the dashboard and status API.
func (r *ReminderEngine) Status() EngineStatus {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	status := EngineStatus{
		ScheduleActive: r.scheduler.Active(),
	}

	if settings, err := r.store.Snapshot(); err == nil {
		status.Enabled = settings.Enabled
	}
	if r.listener != nil {
		status.PushConnected = r.listener.Connected()
	}
	if snooze, err := r.store.GetActiveSnooze(); err == nil {
		status.Snooze = snooze
	}

	if !r.finishedAt.IsZero() {
		finishedAt := r.finishedAt
		elapsed := r.elapsedLocked(r.clock.Now())
		decomposed := Decompose(elapsed)

		status.EpisodeActive = true
		status.JobName = r.jobName
		status.FinishedAt = &finishedAt
		status.Paused = !r.pausedAt.IsZero()
		status.ElapsedSeconds = elapsed
		status.ElapsedDisplay = decomposed.HoursMinutes
		if decomposed.Days > 0 {
			status.ElapsedDisplay = decomposed.DaysHoursMinutes
		}
		status.Tier = SelectTier(decomposed)
	}

	return status
}

// displayJob returns a loggable job name.
func displayJob(name string) string {
	if name == "" {
		return "unnamed job"
	}
	return name
}
