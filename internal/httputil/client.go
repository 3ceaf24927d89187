package httputil

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xwin-go/xwin/internal/buildinfo"
)

// MicrosoftHostSuffixes is the set of host suffixes the wincrt/SDK
// pipeline is permitted to talk to: the aka.ms redirector named by the
// channel manifest URL, and microsoft.com, which covers the CDN hosts
// (e.g. download.visualstudio.microsoft.com) that manifest payload
// "url" fields resolve to. A bare request host must equal one of these
// suffixes or end in "."+suffix.
var MicrosoftHostSuffixes = []string{"aka.ms", "microsoft.com"}

// ClientOptions configures the secure HTTP client.
type ClientOptions struct {
	// Timeout is the overall request timeout. Default: 30s.
	Timeout time.Duration

	// DialTimeout is the TCP dial timeout. Default: 30s.
	DialTimeout time.Duration

	// TLSHandshakeTimeout is the TLS handshake timeout. Default: 10s.
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout is the time to wait for response headers. Default: 10s.
	ResponseHeaderTimeout time.Duration

	// MaxRedirects is the maximum redirect depth. Default: 10.
	MaxRedirects int

	// EnableCompression enables Accept-Encoding header. Default: false (disabled for security).
	// Keeping compression disabled prevents decompression bomb attacks.
	EnableCompression bool

	// MaxIdleConns is the maximum number of idle connections. Default: 10.
	MaxIdleConns int

	// IdleConnTimeout is how long idle connections stay open. Default: 90s.
	IdleConnTimeout time.Duration

	// AllowedHostSuffixes, if non-empty, restricts every redirect
	// target to hosts matching one of these suffixes (see HostAllowed).
	// Empty means unrestricted, aside from the SSRF IP checks below.
	AllowedHostSuffixes []string

	// UserAgent, if set, is sent on every request.
	UserAgent string
}

// DefaultOptions returns the default client options with security-focused defaults.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		Timeout:               30 * time.Second,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxRedirects:          10,
		EnableCompression:     false, // Disabled for security (decompression bomb protection)
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

// MicrosoftOptions returns DefaultOptions restricted to the Microsoft
// manifest/CDN endpoints this tool fetches from, tagged with an
// xwin/<version> User-Agent.
func MicrosoftOptions() ClientOptions {
	opts := DefaultOptions()
	opts.AllowedHostSuffixes = MicrosoftHostSuffixes
	opts.UserAgent = buildinfo.UserAgent()
	return opts
}

// HostAllowed reports whether host matches one of the given suffixes,
// either exactly or as a dotted subdomain. An empty suffix list allows
// any host.
func HostAllowed(host string, suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, suffix := range suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// NewSecureClient creates an HTTP client with SSRF protection and security hardening.
//
// Security features:
//   - DisableCompression: true by default - prevents decompression bomb attacks
//   - SSRF protection via redirect validation (blocks private, loopback, link-local IPs)
//   - DNS rebinding protection (resolves hostnames and validates all IPs)
//   - HTTPS-only redirects
//   - Configurable redirect chain limit
func NewSecureClient(opts ClientOptions) *http.Client {
	// Apply defaults for zero values
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.TLSHandshakeTimeout == 0 {
		opts.TLSHandshakeTimeout = 10 * time.Second
	}
	if opts.ResponseHeaderTimeout == 0 {
		opts.ResponseHeaderTimeout = 10 * time.Second
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 10
	}
	if opts.IdleConnTimeout == 0 {
		opts.IdleConnTimeout = 90 * time.Second
	}

	// DisableCompression is the inverse of EnableCompression.
	// By default (EnableCompression=false), we disable compression for security.
	disableCompression := !opts.EnableCompression

	transport := &http.Transport{
		DisableCompression: disableCompression,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          opts.MaxIdleConns,
		IdleConnTimeout:       opts.IdleConnTimeout,
	}

	var rt http.RoundTripper = transport
	if opts.UserAgent != "" {
		rt = &guardedTransport{base: transport, userAgent: opts.UserAgent}
	}

	return &http.Client{
		Timeout:       opts.Timeout,
		Transport:     rt,
		CheckRedirect: makeRedirectChecker(opts.MaxRedirects, opts.AllowedHostSuffixes),
	}
}

// guardedTransport stamps a fixed User-Agent header on every outbound
// request that doesn't already carry one. The host allowlist is
// enforced separately, in makeRedirectChecker: the caller's own code
// builds the initial request URL (e.g. the hardcoded aka.ms channel
// manifest endpoint, or a URL copied from an already-validated
// manifest payload), so only redirect targets - which an attacker
// controls by responding from a compromised or spoofed first hop -
// need the allowlist, and makeRedirectChecker applies it to them.
type guardedTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// makeRedirectChecker creates a redirect validation function. A
// non-empty allowedHostSuffixes restricts redirect targets to those
// hosts in addition to the SSRF IP checks.
func makeRedirectChecker(maxRedirects int, allowedHostSuffixes []string) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		// SECURITY: Prevent redirect downgrade attacks (HTTPS -> HTTP)
		if req.URL.Scheme != "https" {
			return fmt.Errorf("redirect to non-HTTPS URL is not allowed: %s", req.URL)
		}

		// Limit redirect depth
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects")
		}

		host := req.URL.Hostname()

		if !HostAllowed(host, allowedHostSuffixes) {
			return fmt.Errorf("refusing redirect to disallowed host: %s", host)
		}

		// SSRF Protection: Check redirect target

		// If hostname is already an IP, check it directly
		if ip := net.ParseIP(host); ip != nil {
			if err := ValidateIP(ip, host); err != nil {
				return err
			}
		} else {
			// Hostname is a domain - resolve DNS and check ALL resulting IPs
			// This prevents DNS rebinding attacks
			ips, err := net.LookupIP(host)
			if err != nil {
				return fmt.Errorf("failed to resolve redirect host %s: %w", host, err)
			}

			for _, ip := range ips {
				if err := ValidateIP(ip, host); err != nil {
					return fmt.Errorf("refusing redirect: %s resolves to blocked IP %s", host, ip)
				}
			}
		}

		return nil
	}
}
