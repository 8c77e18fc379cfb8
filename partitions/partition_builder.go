package partitions

import (
	"fmt"
	"math"
)

// PartitionBuilder splits an element range [0, NumElements) into partitions
type PartitionBuilder struct {
	NumElements int

	// Partitioning parameters
	TargetPartitionSize int // Desired elements per partition
	Strategy            PartitionStrategy
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically
)

// NewWorkerLayout partitions numElements into at most workers blocks of
// consecutive elements
func NewWorkerLayout(numElements, workers int) (*PartitionLayout, error) {
	if workers < 1 {
		workers = 1
	}
	pb := &PartitionBuilder{
		NumElements:         numElements,
		TargetPartitionSize: int(math.Ceil(float64(numElements) / float64(workers))),
		Strategy:            BlockPartition,
	}
	return pb.BuildPartitions()
}

// BuildPartitions creates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumElements < 1 {
		return nil, fmt.Errorf("cannot partition %d elements", pb.NumElements)
	}
	// Determine number of partitions needed
	numPartitions := pb.calculateNumPartitions()

	// Partition the elements
	eToP := pb.partitionElements(numPartitions)

	// Create partition structures
	partitions := pb.createPartitions(eToP, numPartitions)

	kpartMax := pb.calculateKpartMax(partitions)
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines the partition count from the target size
func (pb *PartitionBuilder) calculateNumPartitions() int {
	target := pb.TargetPartitionSize
	if target < 1 {
		target = pb.NumElements
	}
	numPartitions := int(math.Ceil(float64(pb.NumElements) / float64(target)))

	// Ensure at least one partition
	if numPartitions < 1 {
		numPartitions = 1
	}

	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) []int {
	eToP := make([]int, pb.NumElements)

	switch pb.Strategy {
	case RoundRobin:
		// Distribute elements cyclically
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i % numPartitions
		}

	default:
		// Simple block partitioning
		elementsPerPartition := int(math.Ceil(float64(pb.NumElements) / float64(numPartitions)))
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i / elementsPerPartition
			if eToP[i] >= numPartitions {
				eToP[i] = numPartitions - 1
			}
		}
	}

	return eToP
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	for i := range partitions {
		partitions[i] = Partition{
			ID:       i,
			Elements: make([]int, 0),
		}
	}

	// Assign elements to partitions in ascending order
	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}

	return partitions
}

// calculateKpartMax finds maximum elements across all partitions
func (pb *PartitionBuilder) calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}
