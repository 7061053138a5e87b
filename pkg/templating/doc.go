/*
Package templating keeps a directory of webtpl template sources and hands out
per-request Documents with every template already loaded.

Sources are read and validated as a set on Refresh; a set with a broken
template is rejected and the previous set stays in service, so template edits
can be hot-reloaded without restarting the application.
*/
package templating
