//go:build !cgo_sqlite

package main

import _ "modernc.org/sqlite"

const driverName = "sqlite"
