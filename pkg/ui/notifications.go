package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier prints run events and forwards them as desktop notifications
// when a sender is available.
type Notifier struct {
	sender     NotificationSender
	onComplete bool
	onError    bool
}

// NewNotifier creates a Notifier for the current platform. enabled=false
// keeps console output but never calls a desktop sender.
func NewNotifier(enabled, onComplete, onError bool) *Notifier {
	var sender NotificationSender
	if enabled {
		switch runtime.GOOS {
		case "linux":
			sender = &LinuxNotificationSender{}
		case "darwin":
			sender = &MacOSNotificationSender{}
		}
	}
	return NewNotifierWithSender(sender, onComplete, onError)
}

// NewNotifierWithSender creates a Notifier with an explicit sender
func NewNotifierWithSender(sender NotificationSender, onComplete, onError bool) *Notifier {
	return &Notifier{sender: sender, onComplete: onComplete, onError: onError}
}

// SendNotification prints an informational event
func (n *Notifier) SendNotification(title, message string) {
	if !IsQuietMode() {
		fmt.Fprintf(out, "\n%s: %s\n", Cyan(title), Yellow(message))
	}
}

// SendError reports a failed run
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(out, "\n%s: %s\n", Red(title), Red(message))
	if n.sender != nil && n.onError {
		// notifications are best effort
		_ = n.sender.Send(title, message)
	}
}

// SendSuccess reports a completed run
func (n *Notifier) SendSuccess(title, message string) {
	if !IsQuietMode() {
		fmt.Fprintf(out, "\n%s: %s\n", Green(title), Green(message))
	}
	if n.sender != nil && n.onComplete {
		_ = n.sender.Send(title, message)
	}
}
