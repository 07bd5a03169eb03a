// Package appfs holds the files embedded in the binaries.
package appfs

import "embed"

//go:embed migrations/*.sql all:templates
var FS embed.FS
