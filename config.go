package ccac

// config.go holds the description of one model: the network parameters, the
// congestion control algorithm and application chosen, and the flags that
// tune how the solver is driven. A ModelConfig is plain data. It is read from
// and written to yaml or json files, validated once, and copied into every
// Model built from it, so the copy the constraints were generated from never
// changes afterwards.

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// CCAKind selects the congestion control algorithm plug-in.
type CCAKind string

const (
	CCAConst       CCAKind = "const"
	CCAAIMD        CCAKind = "aimd"
	CCAAIMDAppsafe CCAKind = "aimd_appsafe"
	CCABBR         CCAKind = "bbr"
	CCACopa        CCAKind = "copa"
	CCAFair        CCAKind = "fair"
	CCARoCC        CCAKind = "rocc"
	CCAConv        CCAKind = "conv"
	CCAAny         CCAKind = "any"
)

// CCAKinds lists every recognized algorithm tag.
var CCAKinds = []CCAKind{CCAConst, CCAAIMD, CCAAIMDAppsafe, CCABBR, CCACopa, CCAFair, CCARoCC, CCAConv, CCAAny}

// AppKind selects the application traffic model.
type AppKind string

const (
	AppBulk     AppKind = "bulk"
	AppBBABR    AppKind = "bb_abr"
	AppPanteABR AppKind = "panteabr"
)

// AppKinds lists every recognized application tag.
var AppKinds = []AppKind{AppBulk, AppBBABR, AppPanteABR}

// EpsilonPolicy says how much slack a non-composable network element may show.
type EpsilonPolicy string

const (
	EpsilonZero        EpsilonPolicy = "zero"
	EpsilonLtAlpha     EpsilonPolicy = "lt_alpha"
	EpsilonLtHalfAlpha EpsilonPolicy = "lt_half_alpha"
	EpsilonGtAlpha     EpsilonPolicy = "gt_alpha"
)

// EpsilonPolicies lists every recognized epsilon tag.
var EpsilonPolicies = []EpsilonPolicy{EpsilonZero, EpsilonLtAlpha, EpsilonLtHalfAlpha, EpsilonGtAlpha}

// ABRConfig parameterizes the buffer-based video applications.
type ABRConfig struct {
	// number of bitrate levels
	NC int `json:"nc" yaml:"nc" validate:"gte=1,lte=8"`

	// minimum spacing, in timesteps of playback, between consecutive
	// buffer thresholds
	ChunkMargin float64 `json:"chunkmargin" yaml:"chunkmargin" validate:"gte=0"`

	// playback buffer cap, in timesteps; no chunk is requested if its
	// arrival would push the buffer past this
	MaxBuffer float64 `json:"maxbuffer" yaml:"maxbuffer" validate:"gt=0"`
}

// ConvConfig weights the candidate window updates of the convex-family
// algorithm. Weights are non-negative and sum to one.
type ConvConfig struct {
	Increase float64 `json:"increase" yaml:"increase" validate:"gte=0,lte=1"`
	Decrease float64 `json:"decrease" yaml:"decrease" validate:"gte=0,lte=1"`
	Match    float64 `json:"match" yaml:"match" validate:"gte=0,lte=1"`
	Hold     float64 `json:"hold" yaml:"hold" validate:"gte=0,lte=1"`
}

// BBRConfig parameterizes the BBR-like algorithm.
type BBRConfig struct {
	// pacing gain cycle, one entry per RTT
	Gains []float64 `json:"gains" yaml:"gains" validate:"min=1,dive,gt=0"`

	// the bandwidth estimate is the maximum delivery rate seen over this many RTTs
	WindowRTTs int `json:"windowrtts" yaml:"windowrtts" validate:"gte=1"`

	// cwnd is CwndGain times the estimated bandwidth-delay product
	CwndGain float64 `json:"cwndgain" yaml:"cwndgain" validate:"gt=0"`
}

// ModelConfig describes one model.
type ModelConfig struct {
	// number of flows sharing the bottleneck
	N int `json:"n" yaml:"n" validate:"gte=1"`

	// maximum propagation plus queueing jitter the network may add, in timesteps
	D int `json:"d" yaml:"d" validate:"gte=0"`

	// round trip time, in timesteps
	R int `json:"r" yaml:"r" validate:"gte=1"`

	// number of timesteps in the trace
	T int `json:"t" yaml:"t" validate:"gte=2"`

	// link capacity, bytes per timestep
	C float64 `json:"c" yaml:"c" validate:"gt=0"`

	// buffer bounds, nil means unbounded
	BufMin *float64 `json:"bufmin,omitempty" yaml:"bufmin,omitempty" validate:"omitempty,gte=0"`
	BufMax *float64 `json:"bufmax,omitempty" yaml:"bufmax,omitempty" validate:"omitempty,gte=0"`

	// duplicate ack threshold for loss detection, nil makes it a free variable
	DupAcks *float64 `json:"dupacks,omitempty" yaml:"dupacks,omitempty" validate:"omitempty,gte=0"`

	CCA CCAKind `json:"cca" yaml:"cca" validate:"required"`
	App AppKind `json:"app" yaml:"app" validate:"required"`

	// when true the network is strictly work conserving; otherwise it may
	// waste capacity with up to epsilon bytes waiting
	Compose bool          `json:"compose" yaml:"compose"`
	Epsilon EpsilonPolicy `json:"epsilon" yaml:"epsilon" validate:"required"`

	Pacing bool `json:"pacing" yaml:"pacing"`

	// window increment quantum, nil makes it a free variable
	Alpha *float64 `json:"alpha,omitempty" yaml:"alpha,omitempty" validate:"omitempty,gt=0"`

	// solver tuning
	UnsatCore     bool `json:"unsatcore" yaml:"unsatcore"`
	Simplify      bool `json:"simplify" yaml:"simplify"`
	CalculateQdel bool `json:"calculateqdel" yaml:"calculateqdel"`

	// rule out service that trickles in increments smaller than alpha
	MinSendQuantum bool `json:"minsendquantum" yaml:"minsendquantum"`

	// AIMD increases every timestep regardless of acknowledgements
	AIMDIncrIrrespective bool `json:"aimdincrirrespective" yaml:"aimdincrirrespective"`

	ABR  *ABRConfig  `json:"abr,omitempty" yaml:"abr,omitempty"`
	Conv *ConvConfig `json:"conv,omitempty" yaml:"conv,omitempty"`
	BBR  *BBRConfig  `json:"bbr,omitempty" yaml:"bbr,omitempty"`
}

var configValidate = validator.New()

// DefaultConfig returns a single-flow AIMD configuration over a composable
// network with unbounded buffers.
func DefaultConfig() *ModelConfig {
	return &ModelConfig{
		N:       1,
		D:       1,
		R:       1,
		T:       10,
		C:       1,
		CCA:     CCAAIMD,
		App:     AppBulk,
		Compose: true,
		Epsilon: EpsilonZero,
	}
}

// DefaultABRConfig is used when an ABR application is chosen without an ABR section.
func DefaultABRConfig() *ABRConfig {
	return &ABRConfig{NC: 3, ChunkMargin: 0, MaxBuffer: 4}
}

// DefaultBBRConfig is used when bbr is chosen without a BBR section.
func DefaultBBRConfig() *BBRConfig {
	return &BBRConfig{Gains: []float64{1.25, 0.75, 1, 1, 1, 1, 1, 1}, WindowRTTs: 2, CwndGain: 2}
}

// DefaultConvConfig is used when conv is chosen without a Conv section.
func DefaultConvConfig() *ConvConfig {
	return &ConvConfig{Increase: 0.5, Decrease: 0, Match: 0.5, Hold: 0}
}

// F is a convenience for filling the optional float fields.
func F(v float64) *float64 { return &v }

// Validate checks the configuration. The first failed rule is returned as a *ConfigError.
func (c *ModelConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return configErr(fe.Namespace(), "failed %q rule (value %v)", fe.Tag(), fe.Value())
		}
		return configErr("ModelConfig", "%v", err)
	}
	if !slices.Contains(CCAKinds, c.CCA) {
		return configErr("CCA", "unrecognized algorithm %q", c.CCA)
	}
	if !slices.Contains(AppKinds, c.App) {
		return configErr("App", "unrecognized application %q", c.App)
	}
	if !slices.Contains(EpsilonPolicies, c.Epsilon) {
		return configErr("Epsilon", "unrecognized epsilon policy %q", c.Epsilon)
	}
	if c.T <= c.R {
		return configErr("T", "horizon %d must exceed the round trip time %d", c.T, c.R)
	}
	if c.BufMin != nil && c.BufMax != nil && *c.BufMin > *c.BufMax {
		return configErr("BufMin", "%v exceeds BufMax %v", *c.BufMin, *c.BufMax)
	}
	if c.N > 1 && !c.CalculateQdel {
		return configErr("CalculateQdel", "multiple flows need queueing delay tracking")
	}
	if c.CCA == CCACopa && !c.CalculateQdel {
		return configErr("CalculateQdel", "copa needs queueing delay tracking")
	}
	if c.Conv != nil {
		sum := c.Conv.Increase + c.Conv.Decrease + c.Conv.Match + c.Conv.Hold
		if math.Abs(sum-1) > 1e-9 {
			return configErr("Conv", "weights sum to %v, not 1", sum)
		}
	}
	return nil
}

// Clone makes a deep copy. A Model keeps one so nobody else can change its configuration.
func (c *ModelConfig) Clone() *ModelConfig {
	cp := *c
	dupF := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	cp.BufMin, cp.BufMax, cp.DupAcks, cp.Alpha = dupF(c.BufMin), dupF(c.BufMax), dupF(c.DupAcks), dupF(c.Alpha)
	if c.ABR != nil {
		abr := *c.ABR
		cp.ABR = &abr
	}
	if c.Conv != nil {
		conv := *c.Conv
		cp.Conv = &conv
	}
	if c.BBR != nil {
		bbr := *c.BBR
		bbr.Gains = slices.Clone(c.BBR.Gains)
		cp.BBR = &bbr
	}
	return &cp
}

// Canonical is the deterministic encoding of the configuration folded into
// query cache keys.
func (c *ModelConfig) Canonical() []byte {
	b, err := json.Marshal(c)
	if err != nil {
		// every field is a plain number, string or bool
		panic(err)
	}
	return append([]byte("ccac-config-v1:"), b...)
}

// WriteToFile stores the ModelConfig struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (c *ModelConfig) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*c)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*c, "", "\t")
	default:
		return fmt.Errorf("ccac: cannot tell the format of %s from its extension", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadModelConfig deserializes a byte slice holding a representation of a ModelConfig.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them. Fields the file leaves out keep the values of DefaultConfig.
// The result is validated before it is returned.
func ReadModelConfig(filename string, useYAML bool, dict []byte) (*ModelConfig, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := DefaultConfig()
	if useYAML {
		err = yaml.Unmarshal(dict, example)
	} else {
		err = json.Unmarshal(dict, example)
	}
	if err != nil {
		return nil, err
	}
	if err := example.Validate(); err != nil {
		return nil, err
	}
	return example, nil
}

// IsYAML reports whether a file name carries a yaml extension.
func IsYAML(filename string) bool {
	ext := path.Ext(filename)
	return ext == ".yaml" || ext == ".YAML" || ext == ".yml"
}

// SetParam sets the field named by paramType from its string form. It is how
// sweeps and the command line override single fields of a loaded
// configuration. For the optional fields the value "none" clears the bound.
func (c *ModelConfig) SetParam(paramType, value string) error {
	vs := stringToValueStruct(value)
	optional := func(dst **float64) error {
		if value == "none" {
			*dst = nil
			return nil
		}
		if !vs.isNumber {
			return configErr(paramType, "%q is not a number", value)
		}
		*dst = F(vs.floatValue)
		return nil
	}
	integer := func(dst *int) error {
		if !vs.isInt {
			return configErr(paramType, "%q is not an integer", value)
		}
		*dst = vs.intValue
		return nil
	}
	boolean := func(dst *bool) error {
		if !vs.isBool {
			return configErr(paramType, "%q is not a boolean", value)
		}
		*dst = vs.boolValue
		return nil
	}

	switch strings.ToLower(paramType) {
	case "n":
		return integer(&c.N)
	case "d":
		return integer(&c.D)
	case "r":
		return integer(&c.R)
	case "t":
		return integer(&c.T)
	case "c":
		if !vs.isNumber {
			return configErr(paramType, "%q is not a number", value)
		}
		c.C = vs.floatValue
	case "bufmin", "buf_min":
		return optional(&c.BufMin)
	case "bufmax", "buf_max":
		return optional(&c.BufMax)
	case "dupacks":
		return optional(&c.DupAcks)
	case "alpha":
		return optional(&c.Alpha)
	case "cca":
		c.CCA = CCAKind(value)
	case "app":
		c.App = AppKind(value)
	case "epsilon":
		c.Epsilon = EpsilonPolicy(value)
	case "compose":
		return boolean(&c.Compose)
	case "pacing":
		return boolean(&c.Pacing)
	case "unsatcore", "unsat_core":
		return boolean(&c.UnsatCore)
	case "simplify":
		return boolean(&c.Simplify)
	case "calculateqdel", "calculate_qdel":
		return boolean(&c.CalculateQdel)
	case "minsendquantum", "min_send_quantum":
		return boolean(&c.MinSendQuantum)
	case "aimdincrirrespective", "aimd_incr_irrespective":
		return boolean(&c.AIMDIncrIrrespective)
	default:
		return configErr(paramType, "no such parameter")
	}
	return nil
}

// A valueStruct holds the forms a parameter value string might take;
// which one is used is known by the parameter it is applied to
type valueStruct struct {
	intValue   int
	floatValue float64
	boolValue  bool

	isInt, isNumber, isBool bool
}

func stringToValueStruct(v string) valueStruct {
	var vs valueStruct

	// try conversion to int
	if ivalue, ierr := strconv.Atoi(v); ierr == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		vs.isInt, vs.isNumber = true, true
		return vs
	}

	// failing that, try conversion to float
	if fvalue, ferr := strconv.ParseFloat(v, 64); ferr == nil {
		vs.floatValue = fvalue
		vs.isNumber = true
		return vs
	}

	if bvalue, berr := strconv.ParseBool(v); berr == nil {
		vs.boolValue = bvalue
		vs.isBool = true
	}
	return vs
}
