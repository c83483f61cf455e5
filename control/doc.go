// Package control provides the configuration snapshot and metrics
// primitives backing the server's runtime Control surface: a typed
// config snapshot (ConfigStore[T]) with reload listeners, and a settable
// metrics map used to cache debug probe results (MetricsRegistry).
package control
