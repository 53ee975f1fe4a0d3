// Package settings implements persistence for the operator control Settings.
//
// The FileRepository stores and loads the settings as protobuf JSON on disk and
// exposes a Repository interface that the server service depends on.
package settings
