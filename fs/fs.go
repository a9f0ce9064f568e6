package appfs

import "embed"

// FS holds the SQL migrations and the email templates.
// Layout templates start with "_", hence all:.
//go:embed migrations all:templates
var FS embed.FS
