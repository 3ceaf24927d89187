package main

import (
	"errors"
	"os"

	"github.com/xwin-go/xwin/internal/xwinerr"
)

// Exit codes let scripts distinguish why an acquisition run failed
// without parsing stderr.
const (
	// ExitSuccess indicates the sysroot was assembled successfully.
	ExitSuccess = 0

	// ExitGeneral indicates the user declined the license prompt, or
	// supplied an illegal channel/version/arch/variant combination.
	ExitGeneral = 1

	// ExitNetwork indicates a download transport failure or a SHA-256
	// mismatch on a downloaded payload.
	ExitNetwork = 2

	// ExitMissingPackage indicates the installer manifest had no entry
	// for a requested package id or payload filename.
	ExitMissingPackage = 3

	// ExitUnsupportedConfiguration indicates the requested arch/variant/
	// version combination has no representation in the manifest.
	ExitUnsupportedConfiguration = 4

	// ExitManifestError indicates a channel or installer manifest
	// violated the expected schema shape.
	ExitManifestError = 5
)

func exitWithCode(code int) {
	os.Exit(code)
}

// exitCodeFor maps the flat xwinerr taxonomy to a process exit code.
// Errors that don't match a known type fall back to ExitGeneral.
func exitCodeFor(err error) int {
	var downloadErr *xwinerr.DownloadError
	var missingPkgErr *xwinerr.MissingPackageError
	var unsupportedErr *xwinerr.UnsupportedPackageConfigurationError
	var malformedErr *xwinerr.MalformedJSONError
	var missingFieldErr *xwinerr.MissingFieldError
	var invalidInputErr *xwinerr.InvalidInputDataError

	switch {
	case errors.As(err, &downloadErr):
		return ExitNetwork
	case errors.As(err, &missingPkgErr):
		return ExitMissingPackage
	case errors.As(err, &unsupportedErr):
		return ExitUnsupportedConfiguration
	case errors.As(err, &malformedErr), errors.As(err, &missingFieldErr):
		return ExitManifestError
	case errors.As(err, &invalidInputErr):
		return ExitGeneral
	default:
		return ExitGeneral
	}
}
