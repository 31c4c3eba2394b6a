package atoms

// FieldValueSetRequest asks the manager to append one value to a field's
// atom chain and swap the ref head. CorrelationID is caller-generated and
// unique per logical operation; the matching response echoes it.
//
// For Collection refs Key is the item key; for Range refs Key is the
// declared range-key VALUE extracted by the caller from the field
// definition. Single refs ignore Key.
type FieldValueSetRequest struct {
	CorrelationID string
	SchemaName    string
	FieldName     string
	RefUUID       string
	Key           string
	Value         map[string]any
	SourcePubKey  string
}

// Correlation implements bus.Correlated.
func (r FieldValueSetRequest) Correlation() string { return r.CorrelationID }

// FieldValueSetResponse reports the outcome of one set request.
// Exactly one response is published per request. Error carries the fault
// text when Success is false; it is a business failure, distinct from the
// Timeout a waiter sees when no response arrives at all.
type FieldValueSetResponse struct {
	CorrelationID string
	Success       bool
	RefUUID       string
	AtomUUID      string
	FieldKey      string
	Error         string
}

// Correlation implements bus.Correlated.
func (r FieldValueSetResponse) Correlation() string { return r.CorrelationID }
