package enum

// ConnectorStatus is the lifecycle phase of a connector process.
// Transitions are monotonic except degraded -> running, which is
// allowed after a successful reconnect.
type ConnectorStatus string

const (
	ConnectorStarting ConnectorStatus = "starting"
	ConnectorRunning  ConnectorStatus = "running"
	ConnectorDegraded ConnectorStatus = "degraded"
	ConnectorStopping ConnectorStatus = "stopping"
	ConnectorStopped  ConnectorStatus = "stopped"
)

func (t ConnectorStatus) String() string {
	return string(t)
}
