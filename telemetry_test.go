package openiap_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openiap/openiap-go"
)

func TestObservableGauges(t *testing.T) {
	client, core := setupClient(t)

	require.NoError(t, client.SetF64ObservableGauge("cpu", 0.75, "cpu load"))
	require.NoError(t, client.SetU64ObservableGauge("queued", math.MaxUint64, "items queued"))
	require.NoError(t, client.SetI64ObservableGauge("drift", -42, "clock drift"))

	g, ok := core.Gauge("cpu")
	require.True(t, ok)
	assert.Equal(t, "f64", g.Kind)
	assert.InDelta(t, 0.75, g.F64, 1e-9)
	assert.Equal(t, "cpu load", g.Description)

	g, ok = core.Gauge("queued")
	require.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), g.U64)

	g, ok = core.Gauge("drift")
	require.True(t, ok)
	assert.Equal(t, int64(-42), g.I64)

	require.NoError(t, client.SetF64ObservableGauge("cpu", 0.5, "cpu load"))
	g, _ = core.Gauge("cpu")
	assert.InDelta(t, 0.5, g.F64, 1e-9)

	require.NoError(t, client.DisableObservableGauge("cpu"))
	_, ok = core.Gauge("cpu")
	assert.False(t, ok)

	var verr *openiap.ValidationError
	require.ErrorAs(t, client.SetF64ObservableGauge("", 1, ""), &verr)
	assert.Equal(t, "name", verr.Field)
	require.ErrorAs(t, client.DisableObservableGauge(""), &verr)
	assert.Equal(t, 1, core.Calls("disable_observable_gauge"))
}

func TestLogForwarding(t *testing.T) {
	client, core := setupClient(t)

	require.NoError(t, client.Info("starting"))
	require.NoError(t, client.Warn("slow"))
	require.NoError(t, client.Error("failed"))
	require.NoError(t, client.Debug("detail"))
	require.NoError(t, client.Trace("step"))
	require.NoError(t, client.Info(""))
	assert.Equal(t, []string{"info:starting", "warn:slow", "error:failed", "debug:detail", "trace:step"}, core.Logs())

	var verr *openiap.ValidationError
	require.ErrorAs(t, client.Log("loud", "x"), &verr)
	assert.Equal(t, "level", verr.Field)
}

func TestProcessLevelTelemetryNeedsCore(t *testing.T) {
	t.Setenv(openiap.EnvLibraryPath, filepath.Join(t.TempDir(), "missing.so"))

	assert.ErrorIs(t, openiap.SetF64ObservableGauge("cpu", 1, ""), openiap.ErrNativeCallFailed)
	assert.ErrorIs(t, openiap.SetU64ObservableGauge("cpu", 1, ""), openiap.ErrNativeCallFailed)
	assert.ErrorIs(t, openiap.SetI64ObservableGauge("cpu", 1, ""), openiap.ErrNativeCallFailed)
	assert.ErrorIs(t, openiap.DisableObservableGauge("cpu"), openiap.ErrNativeCallFailed)
	assert.ErrorIs(t, openiap.Log(openiap.LevelInfo, "x"), openiap.ErrNativeCallFailed)
}

func TestInvokeOpenRPA(t *testing.T) {
	client, core := setupClient(t)
	var got []string
	core.HandleOpenRPA("robot-1", func(workflowid, payload string) (string, error) {
		got = append(got, workflowid+" "+payload)
		if workflowid == "broken" {
			return "", errors.New("workflow faulted")
		}
		return `{"total":3}`, nil
	})

	out, err := client.InvokeOpenRPA(openiap.InvokeOpenRPARequest{
		RobotID:    "robot-1",
		WorkflowID: "sum",
		Payload:    `{"a":1,"b":2}`,
	}, 10*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":3}`, out)

	out, err = client.InvokeOpenRPA(openiap.InvokeOpenRPARequest{RobotID: "robot-1", WorkflowID: "sum", NoWait: true}, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []string{`sum {"a":1,"b":2}`, "sum {}"}, got)

	var rerr *openiap.RequestFailedError
	_, err = client.InvokeOpenRPA(openiap.InvokeOpenRPARequest{RobotID: "robot-1", WorkflowID: "broken"}, 0)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "workflow faulted", rerr.Message)

	_, err = client.InvokeOpenRPA(openiap.InvokeOpenRPARequest{RobotID: "offline", WorkflowID: "sum"}, time.Second)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Timeout", rerr.Message)

	core.FailNext("invoke_openrpa", "server gone")
	_, err = client.InvokeOpenRPA(openiap.InvokeOpenRPARequest{RobotID: "robot-1", WorkflowID: "sum"}, 0)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "server gone", rerr.Message)

	calls := core.Calls("invoke_openrpa")
	tests := []struct {
		name  string
		req   openiap.InvokeOpenRPARequest
		field string
	}{
		{"Robot", openiap.InvokeOpenRPARequest{WorkflowID: "sum"}, "robotid"},
		{"Workflow", openiap.InvokeOpenRPARequest{RobotID: "robot-1"}, "workflowid"},
		{"Payload", openiap.InvokeOpenRPARequest{RobotID: "robot-1", WorkflowID: "sum", Payload: "{"}, "payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.InvokeOpenRPA(tt.req, 0)
			var verr *openiap.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Equal(t, calls, core.Calls("invoke_openrpa"))
}
