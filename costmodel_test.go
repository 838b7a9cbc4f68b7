package forkjoin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpCost_TotalCost(t *testing.T) {
	c := OpCost{BytesLoaded: 1, BytesStored: 2, ComputeCycles: 3}
	assert.Equal(t, 1*4+2*5+3*6.0, c.TotalCost(4, 5, 6))
	assert.Zero(t, OpCost{}.TotalCost(4, 5, 6))
}

func TestOpCost_String(t *testing.T) {
	c := OpCost{BytesLoaded: 1, BytesStored: 2, ComputeCycles: 3.5}
	assert.Equal(t, "[bytes_loaded = 1, bytes_stored = 2, compute_cycles = 3.5]", c.String())
}

func TestDefaultCostModel(t *testing.T) {
	m := DefaultCostModel()
	assert.Equal(t, 11.0/64, m.LoadCyclesPerByte)
	assert.Equal(t, 11.0/64, m.StoreCyclesPerByte)
	assert.Equal(t, 1.0, m.CyclesPerComputeCycle)
	assert.Equal(t, 100000.0, m.StartupCycles)
	assert.Equal(t, 100000.0, m.PerThreadCycles)
	assert.Equal(t, 40000.0, m.TaskSizeCycles)
}

func TestCostModel_NumThreads(t *testing.T) {
	m := DefaultCostModel()
	tests := []struct {
		name       string
		outputSize float64
		cost       OpCost
		maxThreads int
		want       int
	}{
		{"no work", 1, OpCost{}, 8, 1},
		{"below startup", 100, OpCost{ComputeCycles: 1000}, 8, 1},
		{"nine threads worth", 1000, OpCost{ComputeCycles: 1000}, 16, 9},
		{"clamped to max", 1000, OpCost{ComputeCycles: 1000}, 8, 8},
		{"memory bound", 1e6, OpCost{BytesLoaded: 64, BytesStored: 64}, 1000, 219},
		{"huge", 1e300, OpCost{ComputeCycles: 1e300}, 4, 4},
		{"infinite", math.Inf(1), OpCost{ComputeCycles: 1}, 4, 4},
		{"zero max", 1e9, OpCost{ComputeCycles: 1}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.NumThreads(tt.outputSize, tt.cost, tt.maxThreads))
		})
	}
}

func TestCostModel_TaskSize(t *testing.T) {
	m := DefaultCostModel()
	assert.Equal(t, 1.0, m.TaskSize(1, OpCost{ComputeCycles: 40000}))
	assert.Equal(t, 1.0, m.TaskSize(10, OpCost{ComputeCycles: 4000}))
	assert.InDelta(t, 22.0/40000, m.TaskSize(1, OpCost{BytesLoaded: 64, BytesStored: 64}), 1e-12)
}

func TestCostModel_Overridable(t *testing.T) {
	m := DefaultCostModel()
	m.TaskSizeCycles = 1000
	m.StartupCycles = 0
	m.PerThreadCycles = 1000

	assert.Equal(t, 0.5, m.TaskSize(1, OpCost{ComputeCycles: 500}))
	// (10*500 - 0)/1000 + 0.9 = 5.9
	assert.Equal(t, 5, m.NumThreads(10, OpCost{ComputeCycles: 500}, 64))
}
