/*
Package dataset connects database/sql to webtpl Documents.

A Feeder runs a query and turns every result row into one repetition of a
dynamic block: each column is assigned to the macro of the same name, then the
block is evaluated. A HitCounter keeps per-page request counts in the same
database so pages can show them.

The package only speaks database/sql; the driver is chosen by the program.
*/
package dataset
