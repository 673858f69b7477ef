package types

// Version is reported by the health endpoint. Overridden at build time via
// -ldflags "-X georelay/internal/shared/types.Version=...".
var Version = "1.0.0"
