package kycq

import "errors"

var (
	// Broker errors.
	ErrBrokerUnavailable = errors.New("kycq: broker unavailable")
	ErrBrokerClosed      = errors.New("kycq: broker closed")

	// Not found errors.
	ErrJobNotFound  = errors.New("kycq: job not found")
	ErrUnknownQueue = errors.New("kycq: unknown queue")

	// Configuration errors.
	ErrConfigurationConflict      = errors.New("kycq: queue re-registered with different options")
	ErrProcessorAlreadyRegistered = errors.New("kycq: processor already registered for queue")
	ErrUnregisteredJobType        = errors.New("kycq: no handler registered for job type")

	// State errors.
	ErrJobAlreadyExists   = errors.New("kycq: job already exists")
	ErrInvalidState       = errors.New("kycq: invalid state transition")
	ErrManagerShuttingDown = errors.New("kycq: manager shutting down")
)
