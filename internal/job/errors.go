package job

import (
	"errors"

	"pixora/internal/effect"
	"pixora/internal/usage"
)

var (
	ErrNoImage            = errors.New("no base image loaded")
	ErrBusy               = errors.New("a job is already in progress")
	ErrEmptyParameter     = errors.New("parameter is empty")
	ErrNoPendingParameter = errors.New("no tool is awaiting a parameter")
	ErrShuttingDown       = errors.New("shutting down, no new jobs accepted")
	ErrUnknownTool        = effect.ErrUnknownTool
	ErrQuotaExceeded      = usage.ErrQuotaExceeded
)
