package nativetest

import (
	"errors"
	"fmt"

	"github.com/openiap/openiap-go/internal/native"
)

// Gauge is the last value published under a gauge name. Exactly one of the
// value fields is meaningful, as named by Kind ("f64", "u64" or "i64").
type Gauge struct {
	Kind        string
	F64         float64
	U64         uint64
	I64         int64
	Description string
}

type telemetry struct {
	gauges  map[string]Gauge
	logs    []string
	openrpa map[string]func(workflowid, payload string) (string, error)
}

func (t *telemetry) init() {
	t.gauges = make(map[string]Gauge)
	t.openrpa = make(map[string]func(string, string) (string, error))
}

// Gauge returns the gauge published under name, if it is still enabled.
func (c *Core) Gauge(name string) (Gauge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.gauges[name]
	return g, ok
}

// Logs returns the messages forwarded to the core's log exports, as
// "level:message", in order.
func (c *Core) Logs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logs...)
}

// HandleOpenRPA installs the robot answering invoke_openrpa for robotid.
// Invocations of robots without a handler time out.
func (c *Core) HandleOpenRPA(robotid string, fn func(workflowid, payload string) (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openrpa[robotid] = fn
}

// CallF64 implements native.Library.
func (c *Core) CallF64(fn string, a uintptr, v float64, b uintptr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[fn]++
	if fn != "set_f64_observable_gauge" || c.broken[fn] {
		return fmt.Errorf("%w: %s", native.ErrSymbolNotFound, fn)
	}
	c.gauges[str(a)] = Gauge{Kind: "f64", F64: v, Description: str(b)}
	return nil
}

func logHandler(level string) handler {
	return func(c *Core, args []uintptr, _ int32) uintptr {
		c.logs = append(c.logs, level+":"+str(args[0]))
		return 0
	}
}

func opSetU64Gauge(c *Core, args []uintptr, _ int32) uintptr {
	c.gauges[str(args[0])] = Gauge{Kind: "u64", U64: uint64(args[1]), Description: str(args[2])}
	return 0
}

func opSetI64Gauge(c *Core, args []uintptr, _ int32) uintptr {
	c.gauges[str(args[0])] = Gauge{Kind: "i64", I64: int64(args[1]), Description: str(args[2])}
	return 0
}

func opDisableGauge(c *Core, args []uintptr, _ int32) uintptr {
	delete(c.gauges, str(args[0]))
	return 0
}

func opInvokeOpenRPA(c *Core, args []uintptr, idArg int32) uintptr {
	req := ptrOf[native.InvokeOpenRPARequest](args[1])
	var out string
	err := c.exec("invoke_openrpa", args[0], func(*clientState) (err error) {
		robot, workflow := native.GoString(req.RobotID), native.GoString(req.WorkflowID)
		if robot == "" {
			return errors.New("No robot id provided")
		}
		if workflow == "" {
			return errors.New("No workflow id provided")
		}
		fn, ok := c.openrpa[robot]
		if !ok {
			return errors.New("Timeout")
		}
		result, err := fn(workflow, native.GoString(req.Payload))
		if err != nil || req.RPC {
			out = result
		}
		return err
	})
	return c.resultBlock("free_invoke_openrpa_response", pickID(req.RequestID, idArg), out, err)
}
