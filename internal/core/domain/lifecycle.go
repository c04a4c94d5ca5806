package domain

type ChangedField string

const (
	FieldStatus    ChangedField = "status"
	FieldRelevance ChangedField = "relevance"
)

// StatusChange is the external "field changed" signal emitted when an
// operator edits the Status column of the buffer log or the Relevance column
// of the Buffer2 log.
type StatusChange struct {
	Company   string       `json:"company"`
	Field     ChangedField `json:"field"`
	Row       int          `json:"row"`
	OldValue  string       `json:"old_value"`
	NewValue  string       `json:"new_value"`
	Reason    string       `json:"reason,omitempty"`
	ChangedBy string       `json:"changed_by,omitempty"`
}

type Transition string

const (
	TransitionDelete   Transition = "active_to_delete"
	TransitionActivate Transition = "delete_to_active"
	TransitionAccept   Transition = "triage_to_yes"
	TransitionReject   Transition = "triage_to_no"
)

type LocationKind string

const (
	LocationBufferActive  LocationKind = "buffer_active"
	LocationBufferDeleted LocationKind = "buffer_deleted"
	LocationBuffer2       LocationKind = "buffer2"
	LocationInflow        LocationKind = "inflow"
	LocationOutflow       LocationKind = "outflow"
	LocationLastKnown     LocationKind = "last_known"
)

// TransitionResult summarizes a lifecycle transition, including partial
// success when the file moved but log reconciliation did not finish.
type TransitionResult struct {
	Transition     Transition   `json:"transition"`
	Company        string       `json:"company"`
	Row            int          `json:"row"`
	UniqueID       string       `json:"unique_id,omitempty"`
	CanonicalName  string       `json:"canonical_name"`
	From           string       `json:"from"`
	To             string       `json:"to"`
	FoundIn        LocationKind `json:"found_in,omitempty"`
	NameMismatch   bool         `json:"name_mismatch,omitempty"`
	StorageRef     string       `json:"storage_ref"`
	FileMoved      bool         `json:"file_moved"`
	LogsReconciled bool         `json:"logs_reconciled"`
	RowsRemoved    int          `json:"rows_removed"`
	RowsAppended   int          `json:"rows_appended"`
	Reverted       bool         `json:"reverted"`
	Error          string       `json:"error,omitempty"`
}
