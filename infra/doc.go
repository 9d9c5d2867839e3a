// Package infra groups the technical adapters: persistence, the MQTT
// audit sink, metrics exporters and the HTTP registry client. These
// packages depend only on interfaces defined under core.
package infra
