package service

// Layer describes where a service sits in the engine.
type Layer string

const (
	// LayerCore holds pure calculators and validators.
	LayerCore Layer = "core"
	// LayerLedger holds components that mutate balances or the ledger.
	LayerLedger Layer = "ledger"
	// LayerWorkflow holds the orchestrators driving entity lifecycles.
	LayerWorkflow Layer = "workflow"
)

// Descriptor names a domain service, its layer and the operations it
// exposes. The application logs one line per descriptor at startup.
type Descriptor struct {
	Name         string
	Domain       string
	Layer        Layer
	Capabilities []string
}

// WithCapabilities returns a copy with caps appended. Repeats are dropped.
func (d Descriptor) WithCapabilities(caps ...string) Descriptor {
	out := append([]string(nil), d.Capabilities...)
	for _, c := range caps {
		if !d.Supports(c) && !contains(out, c) {
			out = append(out, c)
		}
	}
	d.Capabilities = out
	return d
}

// Supports reports whether op is one of the advertised capabilities.
func (d Descriptor) Supports(op string) bool { return contains(d.Capabilities, op) }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
