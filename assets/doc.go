// Package assets stores encoded rasters on the local file system and keeps
// an index of them in SQLite.
//
// A FileStore is a tileflat.AssetStore: Upload writes
// root/targetPath/filename and returns "targetPath/filename" as the
// reference that entities carry. It is also a stage.Source, so the same
// references can be opened for drawing.
package assets
