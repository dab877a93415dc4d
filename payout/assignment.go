package payout

import (
	"context"
	"sort"

	"github.com/warp/repasse-engine/calendar"
)

// =============================================================================
// RETURN ASSIGNMENT - Which records a close takes
// =============================================================================

// SelectUnassigned returns the records of clientID that have no period yet
// and are dated inside w (both ends inclusive). It never mutates its input
// and the result is ordered by date.
func SelectUnassigned(records []YieldRecord, clientID ClientID, w calendar.Window) []YieldRecord {
	var selected []YieldRecord
	for _, r := range records {
		if r.ClientID != clientID || r.Assigned() || !w.Contains(r.Date) {
			continue
		}
		selected = append(selected, r)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Date.Before(selected[j].Date)
	})
	return selected
}

// RecordIDs extracts the ids of records.
func RecordIDs(records []YieldRecord) []RecordID {
	ids := make([]RecordID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// AssignmentEngine binds SelectUnassigned to a repository read. It performs
// no writes; the closer does the assignment.
type AssignmentEngine struct {
	Records YieldRepository
}

// SelectUnassigned loads the client's records in w and filters them.
func (e AssignmentEngine) SelectUnassigned(ctx context.Context, clientID ClientID, w calendar.Window) ([]YieldRecord, error) {
	records, err := e.Records.RecordsInWindow(ctx, clientID, w)
	if err != nil {
		return nil, err
	}
	return SelectUnassigned(records, clientID, w), nil
}
