package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tagflow/internal/domain"
	"tagflow/internal/tagging"
)

// tagPairs loads the key/value pairs a policy applies to flow. Additions are
// stored per flow and filtered by the store; deletions are global rows
// filtered here by scope.
func (e Engine) tagPairs(ctx context.Context, flow domain.ApprovalFlow, policy domain.Policy, description string) ([]tagging.Pair, error) {
	q := domain.LOVQuery{Description: description}
	if description == domain.LOVKeyValue {
		q.GeneralID = domain.Int64(flow.ID)
		q.CustomerID = policy.CustomerID
		q.AccountID = policy.AccountID
	}
	rows, err := e.Records.SearchLOV(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", description, err)
	}
	var pairs []tagging.Pair
	for _, row := range rows {
		if description == domain.LOVKeyValueDelete && !scopeMatches(row, policy) {
			continue
		}
		if strings.TrimSpace(row.Value1) == "" {
			e.log().Warn("skipping LOV row without key", zap.Int64("lov_id", row.ID), zap.Int64("flow_id", flow.ID))
			continue
		}
		pairs = append(pairs, tagging.Pair{Key: row.Value1, Value: row.Value2})
	}
	return pairs, nil
}

// scopeMatches treats a missing id on either side as a wildcard.
func scopeMatches(lov domain.LOV, policy domain.Policy) bool {
	return idMatches(lov.CustomerID, policy.CustomerID) &&
		idMatches(lov.AccountID, policy.AccountID) &&
		idMatches(lov.OrganizationID, policy.OrganizationID)
}

func idMatches(a, b *int64) bool {
	return a == nil || b == nil || *a == *b
}
