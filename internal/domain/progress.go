package domain

// ProgressFunc reports load progress to the UI.
// Called with cumulative counts: (1, 40), (2, 40), ...
type ProgressFunc func(processed, total int)

// LoadProgress is the last progress reported for a load
type LoadProgress struct {
	Processed int
	Total     int
}

// NotificationLevel is the severity of a user-visible notification
type NotificationLevel string

const (
	NotifyInfo  NotificationLevel = "info"
	NotifyError NotificationLevel = "error"
)

// Notification is a non-throwing, user-visible message
type Notification struct {
	Level   NotificationLevel
	Message string
	Err     error
}

// Notifier receives notifications raised by the orchestrator
type Notifier interface {
	Notify(n Notification)
}

// NoOpNotifier discards notifications (for tests/batch operations).
type NoOpNotifier struct{}

func (NoOpNotifier) Notify(Notification) {}
