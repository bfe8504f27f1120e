/*
Package observability provides tools for monitoring the weft interpreter.

It turns the interpreter's lifecycle hooks into Prometheus metrics and structured
log lines. Hook sets compose with Chain, so metrics and logging can be attached
to the same interpreter.
*/
package observability
