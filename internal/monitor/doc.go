// Package monitor provides the business boundary for Terrawatch's change
// monitoring system. It defines the domain models (Region, Alert, Job), the
// RegionService (AOI lifecycle), the Orchestrator (detection job state machine
// and async dispatch), the Scheduler (batch runs over eligible regions), the
// Analytics aggregator (time-windowed rollups), and the Store/JobStore
// persistence interfaces.
package monitor
