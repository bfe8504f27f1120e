// Package registry keeps named coroutine definitions so documents and services
// can refer to them by name. It also carries the built-in definitions.
package registry
