package openiap

import (
	"errors"
	"math/bits"

	"github.com/openiap/openiap-go/internal/native"
)

// Level is a severity of the core's log output.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelTrace Level = "trace"
)

func (l Level) valid() bool {
	switch l {
	case LevelError, LevelWarn, LevelInfo, LevelDebug, LevelTrace:
		return true
	}
	return false
}

var errWideGauge = errors.New("64-bit gauges need a 64-bit platform")

// Log writes msg through the core's tracing output at level, next to the
// core's own records. Empty messages are dropped.
func (c *Client) Log(level Level, msg string) error { return logTo(c.lib, level, msg) }

// Info logs msg through the core at LevelInfo.
func (c *Client) Info(msg string) error { return c.Log(LevelInfo, msg) }

// Warn logs msg through the core at LevelWarn.
func (c *Client) Warn(msg string) error { return c.Log(LevelWarn, msg) }

// Error logs msg through the core at LevelError.
func (c *Client) Error(msg string) error { return c.Log(LevelError, msg) }

// Debug logs msg through the core at LevelDebug.
func (c *Client) Debug(msg string) error { return c.Log(LevelDebug, msg) }

// Trace logs msg through the core at LevelTrace.
func (c *Client) Trace(msg string) error { return c.Log(LevelTrace, msg) }

// SetF64ObservableGauge publishes value under name on the core's metrics
// exporter. Later calls replace the value.
func (c *Client) SetF64ObservableGauge(name string, value float64, description string) error {
	return setF64Gauge(c.lib, name, value, description)
}

// SetU64ObservableGauge is SetF64ObservableGauge for unsigned values.
func (c *Client) SetU64ObservableGauge(name string, value uint64, description string) error {
	return setIntGauge(c.lib, "set_u64_observable_gauge", name, uintptr(value), description)
}

// SetI64ObservableGauge is SetF64ObservableGauge for signed values.
func (c *Client) SetI64ObservableGauge(name string, value int64, description string) error {
	return setIntGauge(c.lib, "set_i64_observable_gauge", name, uintptr(value), description)
}

// DisableObservableGauge stops reporting the gauge name.
func (c *Client) DisableObservableGauge(name string) error {
	return disableGauge(c.lib, name)
}

// Log loads the core from the environment's configuration and logs msg
// through it.
func Log(level Level, msg string) error {
	lib, err := processLibrary()
	if err != nil {
		return err
	}
	return logTo(lib, level, msg)
}

// SetF64ObservableGauge loads the core from the environment's configuration
// and publishes a gauge on it.
func SetF64ObservableGauge(name string, value float64, description string) error {
	lib, err := processLibrary()
	if err != nil {
		return err
	}
	return setF64Gauge(lib, name, value, description)
}

// SetU64ObservableGauge is the package-level form of
// Client.SetU64ObservableGauge.
func SetU64ObservableGauge(name string, value uint64, description string) error {
	lib, err := processLibrary()
	if err != nil {
		return err
	}
	return setIntGauge(lib, "set_u64_observable_gauge", name, uintptr(value), description)
}

// SetI64ObservableGauge is the package-level form of
// Client.SetI64ObservableGauge.
func SetI64ObservableGauge(name string, value int64, description string) error {
	lib, err := processLibrary()
	if err != nil {
		return err
	}
	return setIntGauge(lib, "set_i64_observable_gauge", name, uintptr(value), description)
}

// DisableObservableGauge is the package-level form of
// Client.DisableObservableGauge.
func DisableObservableGauge(name string) error {
	lib, err := processLibrary()
	if err != nil {
		return err
	}
	return disableGauge(lib, name)
}

func logTo(lib native.Library, level Level, msg string) error {
	if !level.valid() {
		return invalid("log", "level", "unknown level "+string(level))
	}
	if msg == "" {
		return nil
	}
	var a native.Arena
	defer a.Release()
	if _, err := lib.Call(string(level), native.Addr(a.CString(msg))); err != nil {
		return nativeFailure(string(level), err)
	}
	return nil
}

func setF64Gauge(lib native.Library, name string, value float64, description string) error {
	if name == "" {
		return invalid("set_f64_observable_gauge", "name", "is required")
	}
	var a native.Arena
	defer a.Release()
	err := lib.CallF64("set_f64_observable_gauge",
		native.Addr(a.CString(name)), value, native.Addr(a.CString(description)))
	if err != nil {
		return nativeFailure("set_f64_observable_gauge", err)
	}
	return nil
}

// setIntGauge passes a 64-bit value in one register, which only holds on
// 64-bit platforms.
func setIntGauge(lib native.Library, fn, name string, value uintptr, description string) error {
	if name == "" {
		return invalid(fn, "name", "is required")
	}
	if bits.UintSize != 64 {
		return nativeFailure(fn, errWideGauge)
	}
	var a native.Arena
	defer a.Release()
	if _, err := lib.Call(fn, native.Addr(a.CString(name)), value, native.Addr(a.CString(description))); err != nil {
		return nativeFailure(fn, err)
	}
	return nil
}

func disableGauge(lib native.Library, name string) error {
	if name == "" {
		return invalid("disable_observable_gauge", "name", "is required")
	}
	var a native.Arena
	defer a.Release()
	if _, err := lib.Call("disable_observable_gauge", native.Addr(a.CString(name))); err != nil {
		return nativeFailure("disable_observable_gauge", err)
	}
	return nil
}
