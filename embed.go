package blogconsole

import "embed"

// EmbeddedAssets contains the static assets shipped with the console,
// served under /public/.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
