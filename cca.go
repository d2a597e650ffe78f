package ccac

import (
	"github.com/iti/ccac/smt"
)

// CCA is a congestion control algorithm plug-in. Extend adds the
// algorithm's constraints on the window and rate series and returns whatever
// extra variables it declared, so queries can refer to them.
type CCA interface {
	Kind() CCAKind
	Extend(c *ModelConfig, s *smt.Solver, v *Variables) (CCAState, error)
}

// CCAState is the extension record an algorithm plug-in leaves on the Model.
type CCAState interface {
	Kind() CCAKind
}

// PeriodicState is implemented by plug-in state with series of its own that
// MakePeriodic has to close the loop on.
type PeriodicState interface {
	ClosePeriod(c *ModelConfig, s *smt.Solver, v *Variables, dur int)
}

func newCCA(kind CCAKind) (CCA, error) {
	switch kind {
	case CCAConst:
		return constCCA{}, nil
	case CCAAIMD:
		return aimdCCA{}, nil
	case CCAAIMDAppsafe:
		return aimdCCA{appsafe: true}, nil
	case CCABBR:
		return bbrCCA{}, nil
	case CCACopa:
		return copaCCA{}, nil
	case CCAFair:
		return fairCCA{}, nil
	case CCARoCC:
		return roccCCA{}, nil
	case CCAConv:
		return convCCA{}, nil
	case CCAAny:
		return anyCCA{}, nil
	}
	return nil, configErr("CCA", "unrecognized algorithm %q", kind)
}

// paceOrUnlimited gives the window-based algorithms their rate: cwnd/R when
// pacing, otherwise so high it never binds
func paceOrUnlimited(c *ModelConfig, s *smt.Solver, v *Variables, n, t int) {
	if c.Pacing {
		s.Add(v.Rate[n][t].Eq(v.Cwnd[n][t].Div(float64(c.R))))
	} else {
		s.Add(v.Rate[n][t].GE(smt.Num(c.C).Scale(100)))
	}
}

// floorAlpha keeps a window from dropping below one quantum
func floorAlpha(x, alpha smt.Real) smt.Real {
	return smt.If(x.GE(alpha), x, alpha)
}

// StatelessCCA is the state of algorithms that declare no variables.
type StatelessCCA struct {
	kind CCAKind
}

func (st StatelessCCA) Kind() CCAKind { return st.kind }

// constCCA holds the window at alpha
type constCCA struct{}

func (constCCA) Kind() CCAKind { return CCAConst }

func (constCCA) Extend(c *ModelConfig, s *smt.Solver, v *Variables) (CCAState, error) {
	for n := 0; n < c.N; n++ {
		for t := 0; t < c.T; t++ {
			s.Add(v.Cwnd[n][t].Eq(v.Alpha))
			paceOrUnlimited(c, s, v, n, t)
		}
	}
	return StatelessCCA{kind: CCAConst}, nil
}

// anyCCA leaves window and rate to the adversary, for properties of the
// network alone
type anyCCA struct{}

func (anyCCA) Kind() CCAKind { return CCAAny }

func (anyCCA) Extend(*ModelConfig, *smt.Solver, *Variables) (CCAState, error) {
	return StatelessCCA{kind: CCAAny}, nil
}
