package notify

import "context"

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission maps a client-reported permission state; unknown values
// are treated as default.
func ParsePermission(s string) Permission {
	switch Permission(s) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

type Notification struct {
	Title              string `json:"title"`
	Body               string `json:"body"`
	Tag                string `json:"tag"`
	Icon               string `json:"icon,omitempty"`
	Badge              string `json:"badge,omitempty"`
	URL                string `json:"url,omitempty"`
	RequireInteraction bool   `json:"requireInteraction"`
}

// Runtime is the environment that actually renders notifications.
type Runtime interface {
	Supported() bool
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, n Notification) error
	Close(tag string)
	Focus()
}

// Unsupported is a Runtime with no notification capability.
type Unsupported struct{}

func (Unsupported) Supported() bool { return false }

func (Unsupported) RequestPermission(context.Context) (Permission, error) {
	return PermissionDenied, nil
}

func (Unsupported) Show(context.Context, Notification) error { return nil }
func (Unsupported) Close(string) {}
func (Unsupported) Focus() {}
