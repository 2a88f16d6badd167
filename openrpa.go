package openiap

import (
	"encoding/json"
	"time"

	"github.com/openiap/openiap-go/internal/native"
)

// InvokeOpenRPARequest starts a workflow on an OpenRPA robot.
type InvokeOpenRPARequest struct {
	// RobotID is the id of the user the robot runs as, or of a role with
	// RPA enabled.
	RobotID    string
	WorkflowID string
	// Payload is the workflow's input arguments as a JSON object.
	// Default: "{}"
	Payload string
	// NoWait returns as soon as the invocation is queued instead of waiting
	// for the workflow to complete.
	NoWait bool
}

func (r *InvokeOpenRPARequest) validate() error {
	switch {
	case r.RobotID == "":
		return invalid("invoke_openrpa", "robotid", "is required")
	case r.WorkflowID == "":
		return invalid("invoke_openrpa", "workflowid", "is required")
	}
	if r.Payload == "" {
		r.Payload = "{}"
	}
	if !json.Valid([]byte(r.Payload)) {
		return invalid("invoke_openrpa", "payload", "must be valid JSON")
	}
	return nil
}

// InvokeOpenRPA runs a workflow on a robot and returns the workflow's output
// as JSON, or "" with NoWait. A zero timeout uses the client default. The
// core has no asynchronous form of this call; run it on a goroutine to
// overlap it with other work.
func (c *Client) InvokeOpenRPA(req InvokeOpenRPARequest, timeout time.Duration) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	return call[string]{
		op:   "invoke_openrpa",
		fn:   "invoke_openrpa",
		free: "free_invoke_openrpa_response",
		encode: func(a *native.Arena, id int32) []uintptr {
			return []uintptr{native.Addr(native.Pin(a, &native.InvokeOpenRPARequest{
				RobotID:    a.CString(req.RobotID),
				WorkflowID: a.CString(req.WorkflowID),
				Payload:    a.CString(req.Payload),
				RPC:        !req.NoWait,
				RequestID:  id,
			})), uintptr(uint32(seconds(timeout)))}
		},
		decode: decodeResult("invoke_openrpa"),
	}.run(c)
}
