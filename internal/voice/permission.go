package voice

import "context"

// PermissionChecker reports whether the microphone may be used. A non-nil
// error means access is denied; prompting the user is outside this package.
type PermissionChecker interface {
	CheckMicrophone(ctx context.Context) error
}

// PermissionFunc adapts a function to the [PermissionChecker] interface.
type PermissionFunc func(ctx context.Context) error

// CheckMicrophone calls f(ctx).
func (f PermissionFunc) CheckMicrophone(ctx context.Context) error { return f(ctx) }

// Granted is a PermissionChecker that always allows access.
var Granted PermissionChecker = PermissionFunc(func(context.Context) error { return nil })
