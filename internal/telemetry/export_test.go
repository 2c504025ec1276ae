package telemetry

var NewSampler = newSampler
