// Package deploy pushes recipe documents to the import inbox of another
// installation.
//
// A push writes "<execution id>.xml" into the destination inbox under a
// temporary name and renames it into place, so the receiving inbox watcher
// never sees a partial file. The receiver submits the recipe under the
// same execution ID, which lets the sender follow the execution.
//
// Two targets are provided: LocalTarget writes to a directory through an
// afero filesystem and SFTPTarget uploads over SSH.
package deploy
