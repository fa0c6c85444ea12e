package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStepProfileSystemOpsAreSandboxed(t *testing.T) {
	p := DeriveStepProfile("run", `(call :ccos.system.execute {:cmd "ls"})`, NewRuntimeContext())

	assert.Equal(t, IsolationSandboxed, p.IsolationLevel)
	assert.True(t, p.SecurityFlags.EnableSyscallFilter)
	assert.True(t, p.SecurityFlags.LogSyscalls)
	assert.True(t, p.SecurityFlags.ReadOnlyFS)
	assert.False(t, p.Deterministic)
}

func TestDeriveStepProfileNetworkOpsAreIsolatedWithAllowList(t *testing.T) {
	p := DeriveStepProfile("fetch", `(call :ccos.network.http-fetch {:url "https://x"})`, NewRuntimeContext())

	assert.Equal(t, IsolationIsolated, p.IsolationLevel)
	assert.False(t, p.MicroVM.Network.Denied)
	assert.NotEmpty(t, p.MicroVM.Network.AllowList)
	assert.True(t, p.SecurityFlags.EnableNetworkACL)
	assert.False(t, p.SecurityFlags.EnableSyscallFilter)
	assert.EqualValues(t, 120_000, p.ResourceLimits.MaxExecutionTimeMS)
	assert.EqualValues(t, 10*1024*1024, p.ResourceLimits.MaxNetworkBandwidth)
	assert.False(t, p.Deterministic)
}

func TestDeriveStepProfileFileOpsGetTmpReadWrite(t *testing.T) {
	p := DeriveStepProfile("save", `(call :ccos.io.write-file {:path "/tmp/x"})`, NewRuntimeContext())

	assert.Equal(t, IsolationIsolated, p.IsolationLevel)
	assert.Equal(t, []string{"/tmp", "/app/data"}, p.MicroVM.FS.ReadWrite)
	assert.True(t, p.SecurityFlags.EnableFSACL)
	assert.EqualValues(t, 60_000, p.ResourceLimits.MaxExecutionTimeMS)
	assert.EqualValues(t, 5000, p.ResourceLimits.MaxIOOperations)
}

func TestDeriveStepProfilePureStepInheritsAndIsDeterministic(t *testing.T) {
	p := DeriveStepProfile("sum", `(call :math.add {:a 1 :b 2})`, NewRuntimeContext())

	assert.Equal(t, IsolationInherit, p.IsolationLevel)
	assert.True(t, p.MicroVM.Network.Denied)
	assert.True(t, p.MicroVM.FS.None)
	assert.True(t, p.Deterministic)
	assert.True(t, p.SecurityFlags.EnableMemoryProtection)
	assert.True(t, p.SecurityFlags.EnableCPUMonitoring)
	assert.EqualValues(t, 30_000, p.ResourceLimits.MaxExecutionTimeMS)
}

func TestDeriveStepProfileIntensiveHintsBumpDefaults(t *testing.T) {
	p := DeriveStepProfile("crunch", `(call :stats.analyze {:dataset d})`, NewRuntimeContext())

	assert.Equal(t, 60, p.MicroVM.TimeoutSecs)
	assert.Equal(t, 1024, p.MicroVM.MemoryMB)
	assert.Equal(t, 2.0, p.MicroVM.CPULimit)
	assert.EqualValues(t, 300_000, p.ResourceLimits.MaxExecutionTimeMS)
	assert.EqualValues(t, 1024*1024*1024, p.ResourceLimits.MaxMemoryBytes)
}

func TestDeriveStepProfileEmptyExprYieldsConservativeDefaults(t *testing.T) {
	p := DeriveStepProfile("mystery", "", NewRuntimeContext())

	assert.Equal(t, IsolationInherit, p.IsolationLevel)
	assert.True(t, p.MicroVM.Network.Denied)
	assert.True(t, p.MicroVM.FS.None)
}

func TestDeriveStepProfileClampDowngradesNeverUpgrades(t *testing.T) {
	rc := NewRuntimeContext(WithLimits(Limits{
		AllowIsolatedIsolation:  true,
		AllowSandboxedIsolation: false,
	}))
	p := DeriveStepProfile("run", `(call :ccos.system.execute {})`, rc)
	assert.Equal(t, IsolationIsolated, p.IsolationLevel)

	rc = NewRuntimeContext(WithLimits(Limits{}))
	p = DeriveStepProfile("run", `(call :ccos.system.execute {})`, rc)
	assert.Equal(t, IsolationInherit, p.IsolationLevel)
}

func TestDeriveStepProfileClampTightensResourceLimits(t *testing.T) {
	rc := NewRuntimeContext(WithLimits(Limits{
		MaxExecutionTimeMS:      10_000,
		MaxMemoryBytes:          64 * 1024 * 1024,
		AllowIsolatedIsolation:  true,
		AllowSandboxedIsolation: true,
	}))
	p := DeriveStepProfile("fetch", `(call :ccos.network.http-fetch {})`, rc)
	assert.EqualValues(t, 10_000, p.ResourceLimits.MaxExecutionTimeMS)
	assert.EqualValues(t, 64*1024*1024, p.ResourceLimits.MaxMemoryBytes)

	// A looser context ceiling never loosens the derived limits.
	rc = NewRuntimeContext(WithLimits(Limits{
		MaxExecutionTimeMS:      600_000,
		AllowIsolatedIsolation:  true,
		AllowSandboxedIsolation: true,
	}))
	p = DeriveStepProfile("fetch", `(call :ccos.network.http-fetch {})`, rc)
	assert.EqualValues(t, 120_000, p.ResourceLimits.MaxExecutionTimeMS)
}
