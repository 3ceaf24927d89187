package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xwin-go/xwin/internal/xwinerr"
)

func TestExitCodeForKnownTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"download", xwinerr.NewDownloadError(404, "not found"), ExitNetwork},
		{"missing package", &xwinerr.MissingPackageError{Message: "x"}, ExitMissingPackage},
		{"unsupported config", &xwinerr.UnsupportedPackageConfigurationError{Message: "x"}, ExitUnsupportedConfiguration},
		{"malformed json", &xwinerr.MalformedJSONError{Message: "x"}, ExitManifestError},
		{"missing field", &xwinerr.MissingFieldError{Field: "f", Message: "x"}, ExitManifestError},
		{"invalid input", &xwinerr.InvalidInputDataError{Message: "x"}, ExitGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.err))
		})
	}
}
