package syncer

import "github.com/dmitrijs2005/techtrack/internal/client/models"

type lineagePlan struct {
	key     models.Lineage
	entries []*models.QueueEntry
}

// planRound groups the entries up to maxSeq into lineages, ordered by their
// oldest entry, and returns the lineages that can be dispatched now. A
// lineage waits while its head references an entity whose create is still
// queued in another lineage.
func planRound(entries []*models.QueueEntry, maxSeq int64, skip func(seq int64) bool, halted func(models.Lineage) bool) []lineagePlan {
	creates := make(map[models.Lineage]struct{})
	for _, e := range entries {
		if e.Op == models.OpCreate {
			creates[e.Lineage()] = struct{}{}
		}
	}

	index := make(map[models.Lineage]int)
	var plans []lineagePlan
	for _, e := range entries {
		if e.Seq > maxSeq {
			continue
		}
		key := e.Lineage()
		i, ok := index[key]
		if !ok {
			i = len(plans)
			index[key] = i
			plans = append(plans, lineagePlan{key: key})
		}
		plans[i].entries = append(plans[i].entries, e)
	}

	ready := plans[:0]
	for _, p := range plans {
		if halted(p.key) {
			continue
		}
		head := p.entries[0]
		if skip(head.Seq) || waitsForCreate(head, creates) {
			continue
		}
		ready = append(ready, p)
	}
	return ready
}

func waitsForCreate(e *models.QueueEntry, creates map[models.Lineage]struct{}) bool {
	schema, err := models.SchemaFor(e.Type)
	if err != nil {
		return false
	}
	for _, ref := range schema.LocalReferences(e.Payload) {
		key := models.Lineage{Type: ref.Type, ID: ref.ID}
		if key == e.Lineage() {
			continue
		}
		if _, ok := creates[key]; ok {
			return true
		}
	}
	return false
}
