package lifespan

import "context"

// Driver identifies the thread of control a host runs a call on.
//
// Worker names the slot whose supervisor state the call uses; two calls with
// the same Worker share one background session. Loop identifies the
// scheduler currently driving that worker. When a worker's Loop changes the
// supervisor treats its background session as stale and starts a fresh one.
type Driver struct {
	Worker string
	Loop   uint64
}

// DefaultDriver is used for calls whose context carries no Driver.
var DefaultDriver = Driver{Worker: "main"}

type driverKey struct{}

// WithDriver attaches d to ctx.
func WithDriver(ctx context.Context, d Driver) context.Context {
	if d.Worker == "" {
		d.Worker = DefaultDriver.Worker
	}
	return context.WithValue(ctx, driverKey{}, d)
}

// DriverFrom returns the Driver attached to ctx, or DefaultDriver.
func DriverFrom(ctx context.Context) Driver {
	if d, ok := ctx.Value(driverKey{}).(Driver); ok {
		return d
	}
	return DefaultDriver
}
