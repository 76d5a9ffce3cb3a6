package modrefresh

import "fmt"

// Verdict is the outcome of classifying a refresh batch.
type Verdict bool

const (
	// Safe batches may be refreshed while the current task blocks on completion.
	Safe Verdict = false
	// Hazardous batches must be refreshed from a detached task.
	Hazardous Verdict = true
)

func (v Verdict) String() string {
	if v == Hazardous {
		return "hazardous"
	}
	return "safe"
}

// DefaultHazardousCapabilities are the capabilities the coordinator's own
// logging and notification path depends on: logging facades and HTTP transports.
var DefaultHazardousCapabilities = []Capability{
	"org.slf4j",
	"javax.servlet.http",
	"log/slog",
	"net/http",
}

// HazardClassifier decides whether waiting synchronously on a batch could
// deadlock the coordinator. A batch is hazardous when it contains the module
// hosting the coordinator, or a module exporting one of the watched capabilities.
type HazardClassifier struct {
	self         ModuleID
	capabilities map[Capability]struct{}
}

// NewHazardClassifier creates a classifier for a coordinator hosted by self.
func NewHazardClassifier(self ModuleID, capabilities ...Capability) *HazardClassifier {
	set := make(map[Capability]struct{}, len(capabilities))
	for _, c := range capabilities {
		set[c] = struct{}{}
	}
	return &HazardClassifier{self: self, capabilities: set}
}

// Self returns the ID of the module hosting the coordinator.
func (c *HazardClassifier) Self() ModuleID {
	return c.self
}

// Capabilities returns the watched capability names.
func (c *HazardClassifier) Capabilities() []Capability {
	out := make([]Capability, 0, len(c.capabilities))
	for capability := range c.capabilities {
		out = append(out, capability)
	}
	return out
}

// Classify returns the verdict for batch along with a human readable reason
// naming the first offending module. The reason is empty for safe batches.
func (c *HazardClassifier) Classify(lister CapabilityLister, batch []ModuleHandle) (Verdict, string) {
	for _, m := range batch {
		if m.ID() == c.self {
			return Hazardous, fmt.Sprintf("module %s (%s) hosts the refresh coordinator", m.ID(), m.Name())
		}
		if lister == nil || len(c.capabilities) == 0 {
			continue
		}
		for _, exported := range lister.ExportedCapabilities(m) {
			if _, watched := c.capabilities[exported]; watched {
				return Hazardous, fmt.Sprintf("module %s (%s) exports %s", m.ID(), m.Name(), exported)
			}
		}
	}
	return Safe, ""
}
