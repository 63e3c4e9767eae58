package memtable

// MergeOperator combines a base value (the key's most recent value or
// deletion record) with one or more merge operands recorded after it, in
// oldest-to-newest order. It reports false if the operands can't be
// combined (e.g. a malformed delta), which the memtable surfaces as a
// Corruption-flavored failure rather than silently dropping data.
type MergeOperator interface {
	FullMerge(key []byte, existing []byte, operands [][]byte) ([]byte, bool)
}

// mergeContext accumulates merge operands for one Get call, newest first,
// matching the order count_successive_merges walks in (spec §4.2).
type mergeContext struct {
	operands [][]byte
}

func (m *mergeContext) push(operand []byte) {
	m.operands = append(m.operands, operand)
}

// Operands returns the accumulated operands, newest first, for callers that
// pass do_merge=false and want to inspect the chain without combining it.
func (m *mergeContext) Operands() [][]byte { return m.operands }
