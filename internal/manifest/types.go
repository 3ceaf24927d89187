// Package manifest defines the typed schema for Microsoft's two-level
// VS/VC distribution manifest: the channel manifest, the installer
// manifest, and the package/payload records nested inside it.
package manifest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/xwin-go/xwin/internal/xwinerr"
)

// Architecture is a target CPU architecture as named in Microsoft
// package ids and file paths.
type Architecture int

const (
	ArchX86 Architecture = iota
	ArchX86_64
	ArchARM
	ArchARM64
	ArchAll
)

// String returns the Microsoft canonical projection: x86, x64, arm, arm64, all.
func (a Architecture) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchX86_64:
		return "x64"
	case ArchARM:
		return "arm"
	case ArchARM64:
		return "arm64"
	case ArchAll:
		return "all"
	default:
		return "unknown"
	}
}

// CRTIdentifier returns the CRT package-id projection: identical to
// the canonical form except AArch64, which is upper-cased to ARM64.
func (a Architecture) CRTIdentifier() string {
	if a == ArchARM64 {
		return "ARM64"
	}
	return a.String()
}

// ATLIdentifier returns the ATL package-id projection: the canonical
// form, fully upper-cased.
func (a Architecture) ATLIdentifier() string {
	return strings.ToUpper(a.String())
}

// ParseArchitecture parses a canonical architecture token (x86, x64,
// arm, arm64, all), case-insensitively.
func ParseArchitecture(s string) (Architecture, bool) {
	switch strings.ToLower(s) {
	case "x86":
		return ArchX86, true
	case "x64", "x86_64", "amd64":
		return ArchX86_64, true
	case "arm":
		return ArchARM, true
	case "arm64", "aarch64":
		return ArchARM64, true
	case "all":
		return ArchAll, true
	default:
		return 0, false
	}
}

// Variant is a Windows runtime variant targeted by the CRT/ATL build.
type Variant int

const (
	VariantDesktop Variant = iota
	VariantOneCore
	VariantStore
	VariantAll
)

// String returns the serialized form used inside package ids.
func (v Variant) String() string {
	switch v {
	case VariantDesktop:
		return "Desktop"
	case VariantOneCore:
		return "OneCore.Desktop"
	case VariantStore:
		return "Store"
	case VariantAll:
		return "All"
	default:
		return "Unknown"
	}
}

// ConcreteVariants expands VariantAll into its three concrete members,
// or returns the single variant unchanged.
func (v Variant) ConcreteVariants() []Variant {
	if v != VariantAll {
		return []Variant{v}
	}
	return []Variant{VariantDesktop, VariantOneCore, VariantStore}
}

// ParseVariant parses a canonical variant token, case-insensitively.
func ParseVariant(s string) (Variant, bool) {
	switch strings.ToLower(s) {
	case "desktop":
		return VariantDesktop, true
	case "onecore":
		return VariantOneCore, true
	case "store":
		return VariantStore, true
	case "all":
		return VariantAll, true
	default:
		return 0, false
	}
}

// Channel is a Visual Studio distribution channel.
type Channel int

const (
	ChannelStable Channel = iota
	ChannelPre
	ChannelRelease
	ChannelInsiders
)

func (c Channel) String() string {
	switch c {
	case ChannelStable:
		return "stable"
	case ChannelPre:
		return "pre"
	case ChannelRelease:
		return "release"
	case ChannelInsiders:
		return "insiders"
	default:
		return "unknown"
	}
}

// ParseChannel parses a canonical channel token, case-insensitively.
func ParseChannel(s string) (Channel, bool) {
	switch strings.ToLower(s) {
	case "stable":
		return ChannelStable, true
	case "pre", "preview":
		return ChannelPre, true
	case "release":
		return ChannelRelease, true
	case "insiders", "insider":
		return ChannelInsiders, true
	default:
		return 0, false
	}
}

// LegalForManifestVersion reports whether this channel may be used
// with the given manifest_version, per §3: versions >=18 require
// stable|insiders; versions <=17 require release|pre.
func (c Channel) LegalForManifestVersion(manifestVersion int) bool {
	if manifestVersion >= 18 {
		return c == ChannelStable || c == ChannelInsiders
	}
	return c == ChannelRelease || c == ChannelPre
}

// ItemType enumerates the distribution categories a ManifestItem can
// carry. Only Manifest, Msi and Vsix are consumed by the pipeline; the
// remainder exist for completeness of JSON decoding.
type ItemType string

const (
	ItemTypeManifest    ItemType = "Manifest"
	ItemTypeMsi         ItemType = "Msi"
	ItemTypeVsix        ItemType = "Vsix"
	ItemTypeExe         ItemType = "Exe"
	ItemTypeZip         ItemType = "Zip"
	ItemTypeMsu         ItemType = "Msu"
	ItemTypeNupkg       ItemType = "Nupkg"
	ItemTypeVsixOrExe   ItemType = "VsixOrExe"
	ItemTypeMsiPatch    ItemType = "MsiPatch"
	ItemTypeUnknownItem ItemType = "Unknown"
)

// ManifestPayload is one downloadable artifact attached to a
// ManifestItem. Immutable once decoded.
type ManifestPayload struct {
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// ManifestItem is one entry of the installer manifest's `packages`
// array (or the channel manifest's `channelItems` array).
type ManifestItem struct {
	ID               string            `json:"id"`
	Version          string            `json:"version"`
	Type             ItemType          `json:"type"`
	Payloads         []ManifestPayload `json:"payloads,omitempty"`
	InstallerVersion string            `json:"installerVersion,omitempty"`
	Chip             string            `json:"chip,omitempty"`
	Dependencies     map[string]any    `json:"dependencies,omitempty"`
	InstallSizes     map[string]int64  `json:"installSizes,omitempty"`
}

// ChannelManifest is the top-level JSON document fetched from
// https://aka.ms/vs/{version}/{channel}/channel.
type ChannelManifest struct {
	ChannelItems []ManifestItem `json:"channelItems"`
}

// InstallerManifest is the second-level JSON document: a flat array of
// packages, each potentially repeated under the same id.
type InstallerManifest struct {
	Packages []ManifestItem `json:"packages"`
}

// PackageIndex maps a package id to its ordered, duplicate-preserving
// sequence of ManifestItem entries, exactly as they appeared in the
// installer manifest.
type PackageIndex map[string][]ManifestItem

// NewPackageIndex buckets an InstallerManifest's flat package list into
// a PackageIndex, preserving insertion order within each id.
func NewPackageIndex(im *InstallerManifest) PackageIndex {
	idx := make(PackageIndex)
	for _, pkg := range im.Packages {
		idx[pkg.ID] = append(idx[pkg.ID], pkg)
	}
	return idx
}

// First returns the first ManifestItem registered under id.
func (p PackageIndex) First(id string) (ManifestItem, bool) {
	items, ok := p[id]
	if !ok || len(items) == 0 {
		return ManifestItem{}, false
	}
	return items[0], true
}

// PayloadType classifies a selected payload by its role in the
// assembled sysroot.
type PayloadType int

const (
	PayloadAtlHeaders PayloadType = iota
	PayloadAtlLibs
	PayloadCrtHeaders
	PayloadCrtLibs
	PayloadSdkHeaders
	PayloadSdkLibs
	PayloadSdkStoreLibs
	PayloadUcrt
	PayloadVcrDebug
	PayloadCabFile
)

func (p PayloadType) String() string {
	switch p {
	case PayloadAtlHeaders:
		return "AtlHeaders"
	case PayloadAtlLibs:
		return "AtlLibs"
	case PayloadCrtHeaders:
		return "CrtHeaders"
	case PayloadCrtLibs:
		return "CrtLibs"
	case PayloadSdkHeaders:
		return "SdkHeaders"
	case PayloadSdkLibs:
		return "SdkLibs"
	case PayloadSdkStoreLibs:
		return "SdkStoreLibs"
	case PayloadUcrt:
		return "Ucrt"
	case PayloadVcrDebug:
		return "VcrDebug"
	case PayloadCabFile:
		return "CabFile"
	default:
		return "Unknown"
	}
}

// CRTPayload is a selected CRT/ATL payload with full provenance.
type CRTPayload struct {
	Filename        string
	Kind            PayloadType
	SHA256          string
	Size            int64
	TargetArch      Architecture
	URL             string
	Version         string
	InstallSize     *int64
	Variant         Variant
	SpectreHardened bool
}

// SuggestedPath returns the download destination relative to
// cache_dir/downloads, per §3: CRT_{version}/{filename}.
func (p CRTPayload) SuggestedPath() string {
	return "CRT_" + p.Version + "/" + p.Filename
}

// DownloadURL returns the payload's source URL.
func (p CRTPayload) DownloadURL() string { return p.URL }

// ExpectedSHA256 returns the payload's expected hex digest.
func (p CRTPayload) ExpectedSHA256() string { return p.SHA256 }

// FileName returns the payload's on-disk file name.
func (p CRTPayload) FileName() string { return p.Filename }

// SDKPayload is a selected Windows SDK/UCRT payload with full provenance.
type SDKPayload struct {
	Filename    string
	Kind        PayloadType
	SHA256      string
	Size        int64
	TargetArch  Architecture
	URL         string
	Version     string
	InstallSize *int64
}

// SuggestedPath returns the download destination relative to
// cache_dir/downloads, per §3: SDK_{version}/{filename}.
func (p SDKPayload) SuggestedPath() string {
	return "SDK_" + p.Version + "/" + p.Filename
}

// DownloadURL returns the payload's source URL.
func (p SDKPayload) DownloadURL() string { return p.URL }

// ExpectedSHA256 returns the payload's expected hex digest.
func (p SDKPayload) ExpectedSHA256() string { return p.SHA256 }

// FileName returns the payload's on-disk file name.
func (p SDKPayload) FileName() string { return p.Filename }

// SelectedPayload is implemented by CRTPayload and SDKPayload: any
// payload chosen by the package selector and ready for the download
// planner.
type SelectedPayload interface {
	SuggestedPath() string
	DownloadURL() string
	ExpectedSHA256() string
	FileName() string
}

// ParseDottedVersion splits a PEP-440-style dotted numeric version
// string into its integer segments for lexicographic component-wise
// comparison. Non-numeric segments make the string unparseable.
func ParseDottedVersion(s string) ([]int, bool) {
	parts := strings.Split(s, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

// CompareDottedVersions compares two dotted numeric version strings
// component-wise; shorter sequences are padded with zeros. Returns -1,
// 0 or 1 in the usual comparator sense.
func CompareDottedVersions(a, b string) int {
	va, _ := ParseDottedVersion(a)
	vb, _ := ParseDottedVersion(b)
	n := len(va)
	if len(vb) > n {
		n = len(vb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(va) {
			x = va[i]
		}
		if i < len(vb) {
			y = vb[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CompareSemVerVersions compares two 3-segment dotted numeric version
// strings, as used by Windows SDK keys like "10.0.26100", using strict
// semantic-version ordering. Either string failing semver parsing
// (e.g. the 4-segment CRT version scheme) falls back to
// CompareDottedVersions.
func CompareSemVerVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return CompareDottedVersions(a, b)
	}
	return va.Compare(vb)
}

// UnmarshalJSON rejects documents that are not a JSON object, turning
// a gross schema violation into a MalformedJSONError rather than a
// generic decode error.
func (c *ChannelManifest) UnmarshalJSON(data []byte) error {
	type alias ChannelManifest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return &xwinerr.MalformedJSONError{Message: err.Error()}
	}
	*c = ChannelManifest(a)
	return nil
}

// UnmarshalJSON mirrors ChannelManifest.UnmarshalJSON for the
// installer manifest document.
func (m *InstallerManifest) UnmarshalJSON(data []byte) error {
	type alias InstallerManifest
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return &xwinerr.MalformedJSONError{Message: err.Error()}
	}
	*m = InstallerManifest(a)
	return nil
}
