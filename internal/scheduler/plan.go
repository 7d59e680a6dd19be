package scheduler

import (
	"github.com/deepuanant/tickrelay/internal/model"
)

// MaxConnections is the broker's concurrent streaming connection limit.
const MaxConnections = 3

// Plan is the subscription plan computed once at startup. Immutable for a
// given catalog; catalog order is preserved throughout.
type Plan struct {
	// Priority is connection 1's permanent set (at most N tokens).
	Priority []uint32

	// Leftover is connection 1's rotation queue, filled from the head of the
	// rotation class up to connection 1's spare capacity.
	Leftover []uint32

	// Rotation2 and Rotation3 are the rotation queues for connections 2 and 3.
	Rotation2 []uint32
	Rotation3 []uint32
}

// BuildPlan classifies the catalog and distributes tokens across the three
// connections under the per-connection capacity n.
//
// Priority segments are INDICES and NFO-FUT; rotation segments are NSE and
// NFO-OPT; everything else is dropped. Priority overflow beyond n is
// reclassified: the first n tokens stay permanent, the remainder is prepended
// to the rotation class before any capacity is handed out.
func BuildPlan(catalog []model.Instrument, n int) Plan {
	var priority, rotation []uint32

	for _, instr := range catalog {
		switch instr.Segment {
		case model.SegmentIndices, model.SegmentNFOFut:
			priority = append(priority, instr.InstrumentToken)
		case model.SegmentNSE, model.SegmentNFOOpt:
			rotation = append(rotation, instr.InstrumentToken)
		}
	}

	var leftover []uint32
	if len(priority) > n {
		overflow := priority[n:]
		priority = priority[:n]
		rotation = append(append(make([]uint32, 0, len(overflow)+len(rotation)), overflow...), rotation...)
	} else {
		spare := n - len(priority)
		take := min(spare, len(rotation))
		leftover = rotation[:take]
		rotation = rotation[take:]
	}

	half := len(rotation) / 2
	return Plan{
		Priority:  priority,
		Leftover:  leftover,
		Rotation2: rotation[:half],
		Rotation3: rotation[half:],
	}
}

// Empty reports whether the plan subscribes nothing at all.
func (p Plan) Empty() bool {
	return len(p.Priority) == 0 && len(p.Leftover) == 0 &&
		len(p.Rotation2) == 0 && len(p.Rotation3) == 0
}
