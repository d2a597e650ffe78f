package ccac

// trace.go turns a satisfying assignment into a readable record of what
// happened in the counterexample. The trace is replayed on a discrete event
// manager, one event per timestep; each event compares the timestep with the
// one before it and records what changed: loss, detection of loss, timeouts,
// window changes and wasted capacity. Records are gathered by a TraceManager
// and written out as yaml or json.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/iti/ccac/smt"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceRecordType distinguishes records about one flow from records about the link
type TraceRecordType int

const (
	FlowType TraceRecordType = iota
	LinkType
)

var trtToStr = map[TraceRecordType]string{FlowType: "flow", LinkType: "link"}

// LinkID is the id trace records about the shared link are stored under
const LinkID = -1

// TraceInst is one serialized trace record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers the records of one replayed counterexample
type TraceManager struct {
	// replay is being recorded
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of the query the counterexample answers
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each flow id, and LinkID for the link
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records, by id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor. It saves the name of the experiment
// and a flag indicating whether the trace manager is active. By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace stores a record under the given id
func (tm *TraceManager) AddTrace(vrt vrtime.Time, id int, trace TraceInst) {
	if !tm.InUse {
		return
	}
	tm.Traces[id] = append(tm.Traces[id], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) error {
	if !tm.InUse {
		return nil
	}
	if _, present := tm.NameByID[id]; present {
		return fmt.Errorf("ccac: duplicated id %d in trace names", id)
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return nil
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.InUse {
		return nil
	}
	var bytes []byte
	var merr error

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*tm)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	default:
		return fmt.Errorf("ccac: cannot tell the format of %s from its extension", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// StepTrace records one change observed between consecutive timesteps
type StepTrace struct {
	Time     float64 `yaml:"time"`     // timestep as float64
	Ticks    int64   `yaml:"ticks"`    // ticks variable of time
	Priority int64   `yaml:"priority"` // priority field of time-stamp
	Flow     int     `yaml:"flow"`     // flow index, LinkID for the link
	Op       string  `yaml:"op"`       // "loss", "detect", "timeout", "cwnd", "waste"
	Prev     float64 `yaml:"prev"`
	Value    float64 `yaml:"value"`
}

func (st *StepTrace) TraceType() TraceRecordType {
	if st.Flow == LinkID {
		return LinkType
	}
	return FlowType
}

func (st *StepTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*st)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

func addStepTrace(tm *TraceManager, vrt vrtime.Time, flow int, op string, prev, value float64) {
	st := &StepTrace{
		Time:     vrt.Seconds(),
		Ticks:    vrt.Ticks(),
		Priority: vrt.Pri(),
		Flow:     flow,
		Op:       op,
		Prev:     prev,
		Value:    value,
	}
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(vrt, flow, TraceInst{TraceTime: traceTime, TraceType: trtToStr[st.TraceType()], TraceStr: st.Serialize()})
}

// replayer is the context of the per-timestep events
type replayer struct {
	tm *TraceManager
	tr *Trace
	c  *ModelConfig
}

// ReplayTrace replays the counterexample held in a on an event manager and
// returns the trace manager holding its records.
func ReplayTrace(m *Model, a smt.Assignment, expName string, active bool) (*TraceManager, error) {
	tr, err := m.Vars.Trace(a)
	if err != nil {
		return nil, err
	}
	tm := CreateTraceManager(expName, active)
	for n := 0; n < m.Config.N; n++ {
		if err := tm.AddName(n, fmt.Sprintf("flow-%d", n), string(m.Config.CCA)); err != nil {
			return nil, err
		}
	}
	if err := tm.AddName(LinkID, "link", "bottleneck"); err != nil {
		return nil, err
	}

	rp := &replayer{tm: tm, tr: tr, c: m.Config}
	evtMgr := evtm.New()
	for t := 1; t < m.Config.T; t++ {
		evtMgr.Schedule(rp, t, replayStep, vrtime.SecondsToTime(float64(t)))
	}
	evtMgr.Run(float64(m.Config.T))
	return tm, nil
}

// replayStep is the handler of the event for timestep t
func replayStep(evtMgr *evtm.EventManager, context any, data any) any {
	rp := context.(*replayer)
	t := data.(int)
	tr := rp.tr
	now := vrtime.SecondsToTime(evtMgr.CurrentSeconds())

	for n := 0; n < rp.c.N; n++ {
		if tr.Lf[n][t] != tr.Lf[n][t-1] {
			addStepTrace(rp.tm, now, n, "loss", tr.Lf[n][t-1], tr.Lf[n][t])
		}
		if tr.Ldf[n][t] != tr.Ldf[n][t-1] {
			addStepTrace(rp.tm, now, n, "detect", tr.Ldf[n][t-1], tr.Ldf[n][t])
		}
		if tr.Timeout[n][t] {
			addStepTrace(rp.tm, now, n, "timeout", tr.Ldf[n][t-1], tr.Ldf[n][t])
		}
		if tr.Cwnd[n][t] != tr.Cwnd[n][t-1] {
			addStepTrace(rp.tm, now, n, "cwnd", tr.Cwnd[n][t-1], tr.Cwnd[n][t])
		}
	}
	if tr.W[t] != tr.W[t-1] {
		addStepTrace(rp.tm, now, LinkID, "waste", tr.W[t-1], tr.W[t])
	}
	return nil
}
