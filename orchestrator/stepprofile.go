package orchestrator

// IsolationLevel is the per-step security envelope strength.
type IsolationLevel string

const (
	IsolationInherit   IsolationLevel = "Inherit"
	IsolationIsolated  IsolationLevel = "Isolated"
	IsolationSandboxed IsolationLevel = "Sandboxed"
)

// NetworkPolicy gates a step's outbound network access.
type NetworkPolicy struct {
	Denied    bool
	AllowList []string
}

// FSPolicy gates a step's filesystem access.
type FSPolicy struct {
	None      bool
	ReadWrite []string
}

// MicroVMConfig is the derived sandbox configuration for one step.
type MicroVMConfig struct {
	Network     NetworkPolicy
	FS          FSPolicy
	TimeoutSecs int
	MemoryMB    int
	CPULimit    float64
}

// ResourceLimits bounds one step's resource consumption.
type ResourceLimits struct {
	MaxExecutionTimeMS  int64
	MaxMemoryBytes      int64
	MaxCPUUsage         float64
	MaxIOOperations     int64
	MaxNetworkBandwidth int64 // bytes/sec, 0 = unset
}

// SecurityFlags are the derived enforcement toggles for one step.
type SecurityFlags struct {
	EnableSyscallFilter   bool
	EnableNetworkACL      bool
	EnableFSACL           bool
	EnableMemoryProtection bool
	EnableCPUMonitoring    bool
	LogSyscalls            bool
	ReadOnlyFS             bool
}

// StepProfile is the derived, ephemeral per-step security envelope logged
// but never mutated after derivation.
type StepProfile struct {
	ProfileID      string
	StepName       string
	IsolationLevel IsolationLevel
	MicroVM        MicroVMConfig
	Deterministic  bool
	ResourceLimits ResourceLimits
	SecurityFlags  SecurityFlags
}

// Limits are the runtime context's ceilings a derived profile must respect.
type Limits struct {
	MaxExecutionTimeMS     int64
	MaxMemoryBytes         int64
	AllowIsolatedIsolation bool
	AllowSandboxedIsolation bool
}

// RuntimeContext carries the caller's resource ceilings and isolation
// allowances, consulted by DeriveStepProfile's clamp step.
type RuntimeContext struct {
	Limits Limits
}

// Option configures a RuntimeContext.
type Option func(*RuntimeContext)

// WithLimits overrides the default (unrestricted) limits.
func WithLimits(limits Limits) Option {
	return func(rc *RuntimeContext) { rc.Limits = limits }
}

// NewRuntimeContext builds a RuntimeContext, defaulting to allowing every
// isolation level and imposing no extra ceilings.
func NewRuntimeContext(opts ...Option) RuntimeContext {
	rc := RuntimeContext{Limits: Limits{AllowIsolatedIsolation: true, AllowSandboxedIsolation: true}}
	for _, o := range opts {
		o(&rc)
	}
	return rc
}
