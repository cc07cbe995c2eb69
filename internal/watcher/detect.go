package watcher

// Detector partitions fetched records into new and already-seen ones.
//
// Identity is the only dedup key: a record whose identity is already in the
// seen-set is never reported again, even if its other fields changed.
type Detector struct {
	IdentityField string
}

func NewDetector(identityField string) Detector {
	return Detector{IdentityField: identityField}
}

// Seed adds every identity in records to seen without reporting anything
// and returns the number of identities added.
func (d Detector) Seed(records []Record, seen SeenSet) int {
	n := 0
	for _, r := range records {
		if seen.Add(Identity(r, d.IdentityField)) {
			n++
		}
	}
	return n
}

// Partition classifies records against seen, inserting new identities as it
// goes. Records without an identity appear in neither result. Order follows
// the input.
func (d Detector) Partition(records []Record, seen SeenSet) (fresh, unchanged []Record) {
	for _, r := range records {
		id := Identity(r, d.IdentityField)
		if id == "" {
			continue
		}
		if seen.Add(id) {
			fresh = append(fresh, r)
			continue
		}
		unchanged = append(unchanged, r)
	}
	return fresh, unchanged
}
