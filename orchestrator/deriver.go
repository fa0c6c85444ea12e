package orchestrator

import (
	"strings"

	"github.com/google/uuid"
)

var (
	systemOpKeywords = []string{"system.execute", "shell", "exec", "process.run"}
	networkOpKeywords = []string{"http-fetch", "socket", "fetch", "http", "network"}
	fileOpKeywords    = []string{"file", "io.read", "io.write", "open"}
	intensiveKeywords = []string{"loop", "iterate", "compute", "process", "analyze"}
	dataOpKeywords    = []string{"data.", "parse", "serialize", "json"}

	defaultNetworkAllowList = []string{"api.example.com", "*.googleapis.com"}
)

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// DeriveStepProfile implements §4.1.1 verbatim: it never fails, falling
// back to conservative defaults for an empty or unparseable step
// expression.
func DeriveStepProfile(stepName, stepExpr string, rc RuntimeContext) StepProfile {
	expr := strings.ToLower(stepExpr)

	systemOps := containsAny(expr, systemOpKeywords)
	networkOps := containsAny(expr, networkOpKeywords)
	fileOps := containsAny(expr, fileOpKeywords)
	intensive := containsAny(expr, intensiveKeywords)
	pureDataOps := containsAny(expr, dataOpKeywords)

	isolation := deriveIsolation(systemOps, networkOps, fileOps)
	microvm := deriveMicroVM(networkOps, fileOps, intensive)
	deterministic := isDeterministic(systemOps, networkOps, fileOps, pureDataOps)
	limits := deriveResourceLimits(networkOps, fileOps, intensive)
	flags := deriveSecurityFlags(systemOps, networkOps, fileOps)

	isolation = clampIsolation(isolation, rc.Limits)
	limits = clampResourceLimits(limits, rc.Limits)

	return StepProfile{
		ProfileID:      "profile-" + uuid.NewString(),
		StepName:       stepName,
		IsolationLevel: isolation,
		MicroVM:        microvm,
		Deterministic:  deterministic,
		ResourceLimits: limits,
		SecurityFlags:  flags,
	}
}

func deriveIsolation(systemOps, networkOps, fileOps bool) IsolationLevel {
	switch {
	case systemOps:
		return IsolationSandboxed
	case networkOps, fileOps:
		return IsolationIsolated
	default:
		return IsolationInherit
	}
}

func deriveMicroVM(networkOps, fileOps, intensive bool) MicroVMConfig {
	cfg := MicroVMConfig{
		Network:     NetworkPolicy{Denied: true},
		FS:          FSPolicy{None: true},
		TimeoutSecs: 30,
		MemoryMB:    256,
		CPULimit:    1.0,
	}
	if networkOps {
		cfg.Network = NetworkPolicy{AllowList: append([]string(nil), defaultNetworkAllowList...)}
	}
	if fileOps {
		cfg.FS = FSPolicy{ReadWrite: []string{"/tmp", "/app/data"}}
	}
	if intensive {
		cfg.TimeoutSecs = 60
		cfg.MemoryMB = 1024
		cfg.CPULimit = 2.0
	}
	return cfg
}

// isDeterministic implements §4.1.1.3: true iff the step has no I/O,
// network, or system ops (a pure function call), or consists only of
// math/data operations. pureDataOps is accepted for symmetry with the
// spec's wording but the no-I/O case alone already covers it.
func isDeterministic(systemOps, networkOps, fileOps, pureDataOps bool) bool {
	return !systemOps && !networkOps && !fileOps
}

func deriveResourceLimits(networkOps, fileOps, intensive bool) ResourceLimits {
	limits := ResourceLimits{
		MaxExecutionTimeMS: 30_000,
		MaxMemoryBytes:     256 * 1024 * 1024,
		MaxCPUUsage:        1.0,
		MaxIOOperations:    1000,
		MaxNetworkBandwidth: 1 * 1024 * 1024,
	}
	if intensive {
		limits.MaxExecutionTimeMS = 300_000
		limits.MaxMemoryBytes = 1024 * 1024 * 1024
		limits.MaxCPUUsage = 2.0
	}
	if networkOps {
		limits.MaxExecutionTimeMS = max64(limits.MaxExecutionTimeMS, 120_000)
		limits.MaxNetworkBandwidth = 10 * 1024 * 1024
	}
	if fileOps {
		limits.MaxExecutionTimeMS = max64(limits.MaxExecutionTimeMS, 60_000)
		limits.MaxIOOperations = 5000
	}
	return limits
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func deriveSecurityFlags(systemOps, networkOps, fileOps bool) SecurityFlags {
	return SecurityFlags{
		EnableSyscallFilter:    systemOps,
		EnableNetworkACL:       networkOps,
		EnableFSACL:            fileOps,
		EnableMemoryProtection: true,
		EnableCPUMonitoring:    true,
		LogSyscalls:            systemOps,
		ReadOnlyFS:             systemOps,
	}
}

// clampIsolation downgrades Sandboxed->Isolated->Inherit to respect the
// runtime context's allowances, never upgrading.
func clampIsolation(level IsolationLevel, limits Limits) IsolationLevel {
	if level == IsolationSandboxed && !limits.AllowSandboxedIsolation {
		level = IsolationIsolated
	}
	if level == IsolationIsolated && !limits.AllowIsolatedIsolation {
		level = IsolationInherit
	}
	return level
}

func clampResourceLimits(limits ResourceLimits, ctxLimits Limits) ResourceLimits {
	if ctxLimits.MaxExecutionTimeMS > 0 && ctxLimits.MaxExecutionTimeMS < limits.MaxExecutionTimeMS {
		limits.MaxExecutionTimeMS = ctxLimits.MaxExecutionTimeMS
	}
	if ctxLimits.MaxMemoryBytes > 0 && ctxLimits.MaxMemoryBytes < limits.MaxMemoryBytes {
		limits.MaxMemoryBytes = ctxLimits.MaxMemoryBytes
	}
	return limits
}
