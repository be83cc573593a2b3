package edgehttp

import (
	"testing"

	"github.com/matryer/is"

	"github.com/munbon/telemetry-core/pkg/types"
)

func TestSpoolRingDropsOldestWhenFull(t *testing.T) {
	is := is.New(t)
	r := newSpoolRing(2)

	is.Equal(r.push(types.RawEnvelope{Token: "a"}), false)
	is.Equal(r.push(types.RawEnvelope{Token: "b"}), false)
	is.Equal(r.push(types.RawEnvelope{Token: "c"}), true) // evicts "a"

	is.Equal(r.droppedCount(), uint64(1))

	drained := r.drain()
	is.Equal(len(drained), 2)
	is.Equal(drained[0].Token, "b")
	is.Equal(drained[1].Token, "c")
}

func TestSpoolRingDrainEmptiesTheBuffer(t *testing.T) {
	is := is.New(t)
	r := newSpoolRing(4)
	r.push(types.RawEnvelope{Token: "a"})

	is.Equal(len(r.drain()), 1)
	is.Equal(len(r.drain()), 0)
}
