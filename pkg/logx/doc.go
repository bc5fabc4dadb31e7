// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase never imports zerolog directly:
// components take a logx.Logger, and the Service can swap sinks and levels
// at runtime when the config file changes.
//
// Sinks: console (always available), an optional append-only log file, and
// an optional Telegram sink that forwards warnings and errors to an
// operator chat, rate-limited so a failure storm cannot flood the chat.
package logx
