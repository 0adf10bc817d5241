// Package ratelimit defines the core Result/Limiter contract shared by
// rate limiting implementations.
//
// pkg/ratelimit embeds the per-IP sharded token bucket that consumes
// this Result type; strategy variants that depended on a shared cache
// layer were dropped (see DESIGN.md).
package ratelimit
