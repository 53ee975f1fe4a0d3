// Package watcher implements the drowsiness-ctl status and watch commands.
package watcher
