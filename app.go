package ccac

import (
	"fmt"

	"github.com/iti/ccac/smt"
)

// App is an application traffic model. Extend is called once per flow and
// returns that flow's state.
type App interface {
	Kind() AppKind
	Extend(n int, c *ModelConfig, s *smt.Solver, v *Variables) (AppState, error)
}

// AppState is one flow's application extension record. Offered is the
// cumulative number of bytes the application has handed the transport by
// each timestep, or nil when the application is always backlogged.
type AppState interface {
	Kind() AppKind
	Offered() []smt.Real
}

func newApp(kind AppKind) (App, error) {
	switch kind {
	case AppBulk:
		return bulkApp{}, nil
	case AppBBABR:
		return abrApp{}, nil
	case AppPanteABR:
		return abrApp{padded: true}, nil
	}
	return nil, configErr("App", "unrecognized application %q", kind)
}

// BulkState is the state of an always-backlogged flow.
type BulkState struct{}

func (BulkState) Kind() AppKind        { return AppBulk }
func (BulkState) Offered() []smt.Real { return nil }

type bulkApp struct{}

func (bulkApp) Kind() AppKind { return AppBulk }

func (bulkApp) Extend(int, *ModelConfig, *smt.Solver, *Variables) (AppState, error) {
	return BulkState{}, nil
}

// BufferBasedState is a video client choosing the bitrate of each chunk from
// how much playback it has buffered. Chunk i has size ChS[i]; it is chosen
// when the buffer holds at least ChT[i] timesteps of playback (ChT[0] is 0).
type BufferBasedState struct {
	NC        int
	ChS       []smt.Real
	ChT       []smt.Real
	ChunkTime smt.Real

	// B is the playback buffer, in timesteps
	B []smt.Real
	// Snd is the cumulative number of bytes requested from the transport
	Snd []smt.Real
	// Req holds when a new chunk is requested
	Req []smt.Bool

	flow int
}

func (*BufferBasedState) Kind() AppKind         { return AppBBABR }
func (st *BufferBasedState) Offered() []smt.Real { return st.Snd }

// PaddedState is the buffer-based client that, while idle, sends dummy
// padding so an observer cannot tell chunk boundaries apart.
type PaddedState struct {
	BufferBasedState

	// Real counts chunk bytes and Pad counts padding; Snd is their sum
	Real, Pad []smt.Real
	// ActuallySent is how many of the bytes sent so far were chunk bytes
	ActuallySent []smt.Real
	// PadQuantum is how much padding is added per idle timestep
	PadQuantum smt.Real
}

func (*PaddedState) Kind() AppKind { return AppPanteABR }

type abrApp struct {
	padded bool
}

func (a abrApp) Kind() AppKind {
	if a.padded {
		return AppPanteABR
	}
	return AppBBABR
}

func (a abrApp) Extend(n int, c *ModelConfig, s *smt.Solver, v *Variables) (AppState, error) {
	cfg := c.ABR
	if cfg == nil {
		cfg = DefaultABRConfig()
	}
	name := func(what string, i int) string { return fmt.Sprintf("abr_%s_%d_%d", what, n, i) }

	st := &BufferBasedState{NC: cfg.NC, flow: n}
	st.ChS = make([]smt.Real, cfg.NC)
	st.ChT = make([]smt.Real, cfg.NC)
	for i := 0; i < cfg.NC; i++ {
		st.ChS[i] = s.Real(name("chs", i))
		if i == 0 {
			st.ChT[i] = smt.Int(0)
			s.Add(st.ChS[i].GT(smt.Int(0)))
			continue
		}
		st.ChT[i] = s.Real(name("cht", i))
		s.Add(st.ChS[i].GT(st.ChS[i-1]))
		s.Add(st.ChT[i].GE(st.ChT[i-1].Add(smt.Num(cfg.ChunkMargin))))
		s.Add(st.ChT[i].GT(st.ChT[i-1]))
	}
	st.ChunkTime = s.Real(fmt.Sprintf("abr_chunk_time_%d", n))
	s.Add(st.ChunkTime.GT(smt.Int(0)))
	s.Add(st.ChunkTime.LE(smt.Num(cfg.MaxBuffer)))

	st.B = make([]smt.Real, c.T)
	st.Snd = make([]smt.Real, c.T)
	st.Req = make([]smt.Bool, c.T)
	for t := 0; t < c.T; t++ {
		st.B[t] = s.Real(name("b", t))
		st.Snd[t] = s.Real(name("snd", t))
		st.Req[t] = s.Bool(name("req", t))
		s.Add(st.B[t].GE(smt.Int(0)))
		s.Add(st.B[t].LE(smt.Num(cfg.MaxBuffer)))
	}

	var ps *PaddedState
	if a.padded {
		ps = &PaddedState{BufferBasedState: *st}
		ps.Real = make([]smt.Real, c.T)
		ps.Pad = make([]smt.Real, c.T)
		ps.ActuallySent = make([]smt.Real, c.T)
		ps.PadQuantum = s.Real(fmt.Sprintf("abr_pad_quantum_%d", n))
		s.Add(ps.PadQuantum.GE(v.Alpha))
		for t := 0; t < c.T; t++ {
			ps.Real[t] = s.Real(name("real", t))
			ps.Pad[t] = s.Real(name("pad", t))
			ps.ActuallySent[t] = s.Real(name("actually_sent", t))
			s.Add(ps.Snd[t].Eq(ps.Real[t].Add(ps.Pad[t])))
			s.Add(ps.Pad[t].GE(smt.Int(0)))

			// chunk bytes sit ahead of padding sent after them
			sent := v.Af[n][t].Sub(ps.Pad[t])
			s.Add(ps.ActuallySent[t].Eq(smt.Min(sent, ps.Real[t])))
		}
	}

	s.Add(st.Snd[0].GE(v.Af[n][0]))
	for t := 1; t < c.T; t++ {
		// everything offered so far has been delivered
		served := v.Sf[n][t].GE(st.Snd[t-1])
		completed := smt.And(served, v.Sf[n][t-1].LT(st.Snd[t-1]))

		drained := smt.Max(st.B[t-1].Sub(smt.Int(1)), smt.Int(0))
		s.Add(st.B[t].Eq(drained.Add(smt.If(completed, st.ChunkTime, smt.Int(0)))))
		s.Add(smt.Iff(st.Req[t], smt.And(served, st.B[t].Add(st.ChunkTime).LE(smt.Num(cfg.MaxBuffer)))))

		size := st.ChS[0]
		for i := 1; i < cfg.NC; i++ {
			size = smt.If(st.B[t].GE(st.ChT[i]), st.ChS[i], size)
		}
		chunk := smt.If(st.Req[t], size, smt.Int(0))

		if ps == nil {
			s.Add(st.Snd[t].Eq(st.Snd[t-1].Add(chunk)))
			continue
		}
		idle := smt.And(served, smt.Not(st.Req[t]))
		s.Add(ps.Real[t].Eq(ps.Real[t-1].Add(chunk)))
		s.Add(ps.Pad[t].Eq(ps.Pad[t-1].Add(smt.If(idle, ps.PadQuantum, smt.Int(0)))))
	}

	if ps != nil {
		return ps, nil
	}
	return st, nil
}

// ClosePeriod repeats the buffer and request pattern; the bytes offered but
// not yet sent are the same in every period.
func (st *BufferBasedState) ClosePeriod(c *ModelConfig, s *smt.Solver, v *Variables, dur int) {
	for t := dur; t < c.T; t++ {
		s.Add(st.B[t].Eq(st.B[t-dur]))
		s.Add(smt.Iff(st.Req[t], st.Req[t-dur]))
		s.Add(st.Snd[t].Sub(v.Af[st.flow][t]).Eq(st.Snd[t-dur].Sub(v.Af[st.flow][t-dur])))
	}
}

// ClosePeriod also repeats the padding added per period.
func (ps *PaddedState) ClosePeriod(c *ModelConfig, s *smt.Solver, v *Variables, dur int) {
	ps.BufferBasedState.ClosePeriod(c, s, v, dur)
	for t := dur; t < c.T; t++ {
		s.Add(ps.Pad[t].Sub(ps.Pad[t-dur]).Eq(ps.Pad[dur].Sub(ps.Pad[0])))
	}
}
