// Package result assembles per-attachment results into an overall verdict
// and persists the traceability artifacts of a cycle.
package result

import "inspection-orchestrator/core/models"

// Aggregate computes the overall inspection result: Fail if any record
// carries a defect finding at or above the threshold, Pass otherwise —
// including the empty-records case, which is a normal outcome. Pure
// function over the record list.
func Aggregate(records []*models.AttachmentRecord, threshold float64) models.JobResult {
	for _, rec := range records {
		if rec == nil {
			continue
		}
		for _, f := range rec.DefectFindings() {
			if f.Score >= threshold {
				return models.ResultFail
			}
		}
	}
	return models.ResultPass
}
