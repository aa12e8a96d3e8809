// File: internal/concurrency/numa_query.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral exported wrappers over the per-build platformXxx probes
// implemented in affinity_linux.go / affinity_windows.go / affinity_linux_pure.go
// / affinity_other.go. Carries no build tag of its own so it is always
// compiled alongside whichever single platform file the build selects.

package concurrency

// CurrentNUMANodeID returns the NUMA node the current thread is presently
// scheduled on, or -1 if that information is unavailable on this
// platform/build.
func CurrentNUMANodeID() int {
	return platformCurrentNUMANodeID()
}

// PreferredCPUID returns a suggested logical CPU index for numaNode.
func PreferredCPUID(numaNode int) int {
	return platformPreferredCPUID(numaNode)
}

// NUMANodes returns the number of NUMA nodes visible to this process,
// delegating to whichever platform probe this build selected.
func NUMANodes() int {
	return platformNUMANodes()
}
