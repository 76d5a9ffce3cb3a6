// Package modrefresh coordinates refreshes of dynamically loaded modules.
//
// Updates made during an installation cycle mark modules for refresh. A
// RefreshTask later drains all marks into one batch, checks whether waiting
// on that batch could deadlock the coordinator, and either waits (bounded)
// for the host runtime's completion event or hands the batch to a detached
// task that does not wait.
package modrefresh

import "strconv"

// ModuleID identifies a module instance for the lifetime of the host runtime.
// A module that is uninstalled and installed again gets a new ModuleID.
type ModuleID int64

func (id ModuleID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseModuleID parses the decimal form produced by ModuleID.String.
func ParseModuleID(s string) (ModuleID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ModuleID(v), nil
}

// Capability names something a module exports to other modules,
// for example a logging facade package or an HTTP transport.
type Capability string

// ModuleHandle is a live reference to a module resolved through the host runtime.
type ModuleHandle interface {
	ID() ModuleID
	Name() string
}

func moduleIDs(modules []ModuleHandle) []ModuleID {
	ids := make([]ModuleID, len(modules))
	for i, m := range modules {
		ids[i] = m.ID()
	}
	return ids
}

func moduleNames(modules []ModuleHandle) []string {
	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Name()
	}
	return names
}
