package bulkadd

import (
	"context"
	"fmt"
	"slices"
)

// computeDiff resolves the request's candidate set and subtracts the
// companies already associated with the target collection. The result is in
// ascending company id order, which fixes the worker's insert order for the
// lifetime of the job.
func (s *Service) computeDiff(ctx context.Context, targetID string, req AddRequest) ([]int64, error) {
	hasIDs := req.CompanyIDs != nil
	hasSource := req.SourceCollectionID != ""
	switch {
	case !hasIDs && !hasSource:
		return nil, fmt.Errorf("%w: either company_ids or source_collection_id must be provided", ErrInvalidRequest)
	case hasIDs && hasSource:
		return nil, fmt.Errorf("%w: only one of company_ids or source_collection_id can be provided", ErrInvalidRequest)
	}

	var candidates []int64
	if hasIDs {
		seen := make(map[int64]bool, len(req.CompanyIDs))
		for _, id := range req.CompanyIDs {
			if seen[id] {
				return nil, fmt.Errorf("%w: duplicate company id %d", ErrInvalidRequest, id)
			}
			seen[id] = true
		}

		missing, err := s.catalog.MissingCompanyIDs(ctx, req.CompanyIDs)
		if err != nil {
			return nil, fmt.Errorf("check companies: %w", err)
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: companies with ids %v do not exist", ErrNotFound, missing)
		}
		candidates = sortedCopy(req.CompanyIDs)
	} else {
		source, err := s.catalog.GetCollection(ctx, req.SourceCollectionID)
		if err != nil {
			return nil, fmt.Errorf("get source collection: %w", err)
		}
		if source == nil {
			return nil, fmt.Errorf("%w: source collection %s", ErrNotFound, req.SourceCollectionID)
		}
		// Already ascending from the store.
		candidates, err = s.catalog.AssociatedCompanyIDs(ctx, req.SourceCollectionID)
		if err != nil {
			return nil, fmt.Errorf("read source collection: %w", err)
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := s.catalog.AssociatedCompanyIDsAmong(ctx, targetID, candidates)
	if err != nil {
		return nil, fmt.Errorf("read target collection: %w", err)
	}
	existingSet := make(map[int64]bool, len(existing))
	for _, id := range existing {
		existingSet[id] = true
	}

	diff := make([]int64, 0, len(candidates)-len(existing))
	for _, id := range candidates {
		if !existingSet[id] {
			diff = append(diff, id)
		}
	}
	return diff, nil
}

func sortedCopy(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
