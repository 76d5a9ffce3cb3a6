package modrefresh

// BatchKind tags how a RefreshBatch is executed.
type BatchKind int

const (
	// BatchImmediate batches are refreshed and waited on by the running task.
	BatchImmediate BatchKind = iota
	// BatchDetached batches are refreshed without waiting for completion.
	BatchDetached
)

func (k BatchKind) String() string {
	if k == BatchDetached {
		return "detached"
	}
	return "immediate"
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k BatchKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// RefreshBatch is a set of resolved modules plus the way it must be refreshed.
type RefreshBatch struct {
	Kind    BatchKind
	Modules []ModuleHandle
}

// Immediate builds a batch that is refreshed with the bounded wait protocol.
func Immediate(modules []ModuleHandle) RefreshBatch {
	return RefreshBatch{Kind: BatchImmediate, Modules: modules}
}

// Detached builds a fire-and-forget batch.
func Detached(modules []ModuleHandle) RefreshBatch {
	return RefreshBatch{Kind: BatchDetached, Modules: modules}
}

// IDs returns the IDs of the batch's modules.
func (b RefreshBatch) IDs() []ModuleID {
	return moduleIDs(b.Modules)
}
