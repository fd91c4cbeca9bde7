// Package app assembles the two deployable processes: the cloud licensing
// server and the self-hosted license agent. It owns the wiring order
// (config, logging, telemetry, key material, services, transport) and the
// process lifecycle.
package app
