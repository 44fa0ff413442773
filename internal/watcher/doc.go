// Package watcher starts runs for videos dropped into the inbox directory.
//
// fsnotify events mark a file as pending; a file is started once no event has
// touched it for the settle period, so partially copied videos are not picked
// up. While another run is active the file stays pending and is retried on
// every tick. Files that fail validation are dropped with a warning.
package watcher
