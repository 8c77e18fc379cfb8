package partitions

import (
	"fmt"
)

// Partition represents a collection of cells evaluated together by one
// search or sampling worker
type Partition struct {
	// Unique identifier for this partition
	ID int

	// Element membership
	Elements    []int // Global element indices in this partition, ascending
	NumElements int   // Actual number of active elements
	MaxElements int   // Largest partition size across the layout
}

// PartitionLayout manages the complete decomposition of an index range
type PartitionLayout struct {
	// All partitions
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	// Verify KpartMax
	actualMax := 0
	total := 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		if p.NumElements != len(p.Elements) {
			return fmt.Errorf("partition %d: NumElements %d != %d listed elements",
				p.ID, p.NumElements, len(p.Elements))
		}
		for _, k := range p.Elements {
			if pl.GetPartition(k) != p.ID {
				return fmt.Errorf("partition %d lists element %d owned by partition %d",
					p.ID, k, pl.GetPartition(k))
			}
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	// Verify every element is owned exactly once
	if total != pl.TotalElements || len(pl.EToP) != pl.TotalElements {
		return fmt.Errorf("layout covers %d elements, EToP has %d, expected %d",
			total, len(pl.EToP), pl.TotalElements)
	}
	return nil
}
