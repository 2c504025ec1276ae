package config

// NewLoggerTo exposes newLogger to tests.
var NewLoggerTo = newLogger
