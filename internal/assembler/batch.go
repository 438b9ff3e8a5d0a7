package assembler

import "fmt"

// PlanBatches partitions [startPage, endPage] into consecutive batches of
// windowSize pages advancing by stride = windowSize - overlap. Every pair
// of adjacent batches shares exactly overlap pages; the final batch may be
// shorter than windowSize. The partition is pure and deterministic.
func PlanBatches(startPage, endPage, windowSize, overlap int) ([]WorkBatch, error) {
	if startPage < 1 {
		return nil, fmt.Errorf("start page must be >= 1, got %d", startPage)
	}
	if endPage < startPage {
		return nil, fmt.Errorf("end page %d before start page %d", endPage, startPage)
	}
	if windowSize < 1 {
		return nil, fmt.Errorf("window size must be >= 1, got %d", windowSize)
	}
	if overlap < 0 || overlap >= windowSize {
		return nil, fmt.Errorf("overlap must be in [0, window), got overlap=%d window=%d", overlap, windowSize)
	}

	stride := windowSize - overlap

	var batches []WorkBatch
	for start := startPage; start <= endPage; start += stride {
		end := start + windowSize - 1
		if end > endPage {
			end = endPage
		}

		batch := WorkBatch{
			BatchID:   len(batches),
			StartPage: start,
			EndPage:   end,
		}
		if len(batches) > 0 {
			prev := batches[len(batches)-1]
			for p := start; p <= prev.EndPage && p <= end; p++ {
				batch.OverlapWithPrev = append(batch.OverlapWithPrev, p)
			}
		}
		batches = append(batches, batch)

		if end == endPage {
			break
		}
	}

	return batches, nil
}
