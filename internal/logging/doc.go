// Package logging provides structured, file-based logging with rotation for
// ragd. Every component receives its *slog.Logger via constructor injection;
// nothing reaches for a package-level global.
package logging
