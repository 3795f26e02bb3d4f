package registry

import "embed"

// embeddedSchemas backs the registry's classpath-style resource
// resolution (spec §4.B, resolution scheme 1). Resources built into the
// binary live under schemas/ with the classpath: prefix.
//
//go:embed all:schemas
var embeddedSchemas embed.FS
