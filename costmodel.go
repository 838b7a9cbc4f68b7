package forkjoin

import "fmt"

// OpCost estimates the work needed to produce one output element.
type OpCost struct {
	BytesLoaded   float64
	BytesStored   float64
	ComputeCycles float64
}

// TotalCost weighs the three components of c into cycles.
func (c OpCost) TotalCost(loadCost, storeCost, computeCost float64) float64 {
	return loadCost*c.BytesLoaded + storeCost*c.BytesStored + computeCost*c.ComputeCycles
}

func (c OpCost) String() string {
	return fmt.Sprintf("[bytes_loaded = %g, bytes_stored = %g, compute_cycles = %g]",
		c.BytesLoaded, c.BytesStored, c.ComputeCycles)
}

// CostModel turns per-element cost estimates into a thread count and a block
// size for ParallelFor. All figures are in CPU cycles.
type CostModel struct {
	// LoadCyclesPerByte and StoreCyclesPerByte weigh memory traffic
	LoadCyclesPerByte  float64
	StoreCyclesPerByte float64

	// CyclesPerComputeCycle scales OpCost.ComputeCycles
	CyclesPerComputeCycle float64

	// StartupCycles is the fixed cost of going parallel at all
	StartupCycles float64

	// PerThreadCycles is the amount of work that justifies one more thread
	PerThreadCycles float64

	// TaskSizeCycles is the target amount of work per block
	TaskSizeCycles float64
}

// DefaultCostModel returns the reference model.
func DefaultCostModel() CostModel {
	return CostModel{
		LoadCyclesPerByte:     11.0 / 64,
		StoreCyclesPerByte:    11.0 / 64,
		CyclesPerComputeCycle: 1,
		StartupCycles:         100000,
		PerThreadCycles:       100000,
		TaskSizeCycles:        40000,
	}
}

// NumThreads returns how many threads are worth using to produce outputSize
// elements at cost each, between 1 and maxThreads.
func (m CostModel) NumThreads(outputSize float64, cost OpCost, maxThreads int) int {
	total := m.totalCost(outputSize, cost)
	threads := (total-m.StartupCycles)/m.PerThreadCycles + 0.9
	// compare as floats: the quotient can be far outside the int range
	switch {
	case threads < 1:
		return 1
	case !(threads < float64(maxThreads)):
		return max(1, maxThreads)
	}
	return int(threads)
}

// TaskSize returns the cost of outputSize elements in units of the target
// block size. 1/TaskSize(1, cost) is the number of elements per block.
func (m CostModel) TaskSize(outputSize float64, cost OpCost) float64 {
	return m.totalCost(outputSize, cost) / m.TaskSizeCycles
}

func (m CostModel) totalCost(outputSize float64, cost OpCost) float64 {
	return outputSize * cost.TotalCost(m.LoadCyclesPerByte, m.StoreCyclesPerByte, m.CyclesPerComputeCycle)
}
