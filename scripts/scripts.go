// Package scripts embeds the Risor scripts shipped with passlens.
//
// cleanup/<dialect>.risor rewrites a stage's IR before the next stage sees
// it. outline/<language>.risor lists the functions of a source file.
package scripts

import "embed"

//go:embed cleanup/*.risor outline/*.risor
var FS embed.FS
