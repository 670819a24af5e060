// Package services defines shared utilities consumed by the stores, the
// leverage providers, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp job GUIDs, language pairs, channels, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (validation vs not-found vs storage) with errors.Is.
//
// Use these helpers when wiring new components so error classification and
// log fields stay uniform across the engine.
package services
