package domain

// FolderRef is an opaque folder locator issued by the file store.
type FolderRef string

// StoredFile is a file as seen by the file store. ID doubles as the storage
// reference persisted in the logs.
type StoredFile struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Folder FolderRef `json:"folder"`
	Size   int64     `json:"size"`
}

// FolderKind is a node in the per-company folder hierarchy.
type FolderKind string

const (
	FolderBufferActive  FolderKind = "buffer_active"
	FolderBufferDeleted FolderKind = "buffer_deleted"
	FolderBuffer2       FolderKind = "buffer2"
	FolderInflow        FolderKind = "inflow"
	FolderOutflow       FolderKind = "outflow"
)

// FlowFolderFor maps a flow invoice status to its folder kind.
func FlowFolderFor(status InvoiceStatus) (FolderKind, bool) {
	switch status {
	case InvoiceInflow:
		return FolderInflow, true
	case InvoiceOutflow:
		return FolderOutflow, true
	default:
		return "", false
	}
}

// LocationOf maps a folder kind to the location reported by recovery.
func LocationOf(kind FolderKind) LocationKind {
	switch kind {
	case FolderBufferActive:
		return LocationBufferActive
	case FolderBufferDeleted:
		return LocationBufferDeleted
	case FolderBuffer2:
		return LocationBuffer2
	case FolderInflow:
		return LocationInflow
	case FolderOutflow:
		return LocationOutflow
	default:
		return LocationKind(kind)
	}
}
