// Package migrations встраивает SQL-схему в бинарники сервера и воркера.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
