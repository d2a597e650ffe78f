package ccac

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/iti/ccac/smt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// eventfulAssignment is the steady trace with a loss at t=2 that is detected
// by a timeout at t=3, after which the window doubles.
func eventfulAssignment(t *testing.T, m *Model) smt.Assignment {
	a := steadyAssignment(t, m)
	setReal(a, lfName(0, 2), 1)
	setReal(a, lfName(0, 3), 1)
	setReal(a, ldfName(0, 3), 1)
	a[timeoutName(0, 3)] = smt.BoolValue(true)
	setReal(a, cwndName(0, 3), 2)
	setReal(a, "W_2", 1)
	setReal(a, "W_3", 1)
	return a
}

func opsOf(t *testing.T, recs []TraceInst) []string {
	var ops []string
	for _, r := range recs {
		var st StepTrace
		require.NoError(t, yaml.Unmarshal([]byte(r.TraceStr), &st))
		ops = append(ops, st.Op)
	}
	return ops
}

func TestReplayTrace(t *testing.T) {
	m, err := Build(steadyConfig())
	require.NoError(t, err)

	tm, err := ReplayTrace(m, eventfulAssignment(t, m), "loss", true)
	require.NoError(t, err)
	assert.Equal(t, NameType{Name: "flow-0", Type: "const"}, tm.NameByID[0])
	assert.Equal(t, "link", tm.NameByID[LinkID].Name)

	flow := tm.Traces[0]
	assert.Equal(t, []string{"loss", "detect", "timeout", "cwnd"}, opsOf(t, flow))
	assert.Equal(t, "2", flow[0].TraceTime)
	assert.Equal(t, "3", flow[3].TraceTime)
	for _, r := range flow {
		assert.Equal(t, "flow", r.TraceType)
	}

	link := tm.Traces[LinkID]
	require.Len(t, link, 1)
	assert.Equal(t, "link", link[0].TraceType)
	var st StepTrace
	require.NoError(t, yaml.Unmarshal([]byte(link[0].TraceStr), &st))
	assert.InDelta(t, 2.0, st.Time, 1e-9)
	assert.Equal(t, LinkID, st.Flow)
	assert.Equal(t, "waste", st.Op)
	assert.Equal(t, 0.0, st.Prev)
	assert.Equal(t, 1.0, st.Value)
}

func TestReplaySteadyTraceIsQuiet(t *testing.T) {
	m, err := Build(steadyConfig())
	require.NoError(t, err)
	tm, err := ReplayTrace(m, steadyAssignment(t, m), "steady", true)
	require.NoError(t, err)
	assert.Empty(t, tm.Traces)
}

func TestReplayInactive(t *testing.T) {
	m, err := Build(steadyConfig())
	require.NoError(t, err)
	tm, err := ReplayTrace(m, eventfulAssignment(t, m), "off", false)
	require.NoError(t, err)
	assert.False(t, tm.Active())
	assert.Empty(t, tm.Traces)
	assert.Empty(t, tm.NameByID)

	file := filepath.Join(t.TempDir(), "off.yaml")
	require.NoError(t, tm.WriteToFile(file))
	_, err = os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestReplayIncompleteAssignment(t *testing.T) {
	m, err := Build(steadyConfig())
	require.NoError(t, err)
	_, err = ReplayTrace(m, smt.Assignment{}, "empty", true)
	assert.ErrorIs(t, err, smt.ErrUnassigned)
}

func TestTraceManagerWriteToFile(t *testing.T) {
	m, err := Build(steadyConfig())
	require.NoError(t, err)
	tm, err := ReplayTrace(m, eventfulAssignment(t, m), "loss", true)
	require.NoError(t, err)
	dir := t.TempDir()

	yfile := filepath.Join(dir, "trace.yaml")
	require.NoError(t, tm.WriteToFile(yfile))
	raw, err := os.ReadFile(yfile)
	require.NoError(t, err)
	var fromYAML TraceManager
	require.NoError(t, yaml.Unmarshal(raw, &fromYAML))
	assert.Equal(t, *tm, fromYAML)

	jfile := filepath.Join(dir, "trace.json")
	require.NoError(t, tm.WriteToFile(jfile))
	raw, err = os.ReadFile(jfile)
	require.NoError(t, err)
	var fromJSON TraceManager
	require.NoError(t, json.Unmarshal(raw, &fromJSON))
	assert.Equal(t, "loss", fromJSON.ExpName)
	assert.Len(t, fromJSON.Traces[0], 4)

	assert.Error(t, tm.WriteToFile(filepath.Join(dir, "trace.csv")))
}

func TestAddNameRejectsDuplicates(t *testing.T) {
	tm := CreateTraceManager("dup", true)
	require.NoError(t, tm.AddName(0, "flow-0", "aimd"))
	assert.Error(t, tm.AddName(0, "flow-0", "aimd"))
}
