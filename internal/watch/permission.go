package watch

import "github.com/pkg/errors"

// Permission failures are the one error class surfaced to the caller:
// they require user action the engine cannot resolve itself. The two
// sentinels stay distinct so the caller can route the user to the
// correct remediation (enable the service vs. open app settings).
var (
	ErrServiceDisabled  = errors.New("location service is disabled")
	ErrPermissionDenied = errors.New("location permission denied")
)

// PermissionChecker is the host's permission surface. A nil return
// means location is available.
type PermissionChecker interface {
	CheckLocationPermission() error
}

// PermissionFunc adapts a plain function to PermissionChecker.
type PermissionFunc func() error

func (f PermissionFunc) CheckLocationPermission() error { return f() }
