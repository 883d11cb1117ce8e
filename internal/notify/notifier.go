// Package notify delivers one-time passcodes to account contact addresses.
package notify

import "context"

// Notifier sends a passcode to a destination address. Failure is reported as
// an error; the gate converts it into a blocked decision.
type Notifier interface {
	Send(ctx context.Context, destination, code string) error
}
