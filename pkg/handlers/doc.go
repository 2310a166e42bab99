// Package handlers provides the built-in recipe step handlers.
//
// Each handler recognizes one step name and ignores every other step:
//
//   - SettingsHandler applies "Settings" steps. Each child element is a
//     settings part and each of its attributes is stored as the site setting
//     "<Part>.<Attribute>".
//   - MediaHandler applies "Media" steps by copying the step's bundled files
//     into the media filesystem, below the optional Folder attribute.
//   - ScriptHandler applies "Script" steps by running the element text as a
//     Starlark program.
//
// Handlers are registered with an engine.Executor, which offers every step
// to every handler.
package handlers
