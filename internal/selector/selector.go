// Package selector implements the package selector (C6): resolving
// CRT/ATL/SDK/UCRT payloads from an installer manifest's PackageIndex
// given a Configuration. This is the combinatorial core of the
// pipeline described in spec §4.6.
package selector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xwin-go/xwin/internal/config"
	"github.com/xwin-go/xwin/internal/manifest"
	"github.com/xwin-go/xwin/internal/xwinerr"
)

// Result is the insertion-ordered selection of payloads keyed by the
// package id (or a synthetic sub-key for SDK payloads that share a
// single manifest item). Later puts on an existing key overwrite the
// value but keep its original position, matching the original's
// right-biased dict union semantics.
type Result struct {
	Order []string
	Items map[string]manifest.SelectedPayload
}

func newResult() *Result {
	return &Result{Items: make(map[string]manifest.SelectedPayload)}
}

func (r *Result) put(key string, p manifest.SelectedPayload) {
	if _, ok := r.Items[key]; !ok {
		r.Order = append(r.Order, key)
	}
	r.Items[key] = p
}

// Merge folds other into r with right-bias, appending any keys not
// already present.
func (r *Result) Merge(other *Result) {
	for _, key := range other.Order {
		r.put(key, other.Items[key])
	}
}

// CRTPayloads returns the selected payloads that are CRTPayload values,
// in selection order.
func (r *Result) CRTPayloads() []manifest.CRTPayload {
	var out []manifest.CRTPayload
	for _, key := range r.Order {
		if p, ok := r.Items[key].(manifest.CRTPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

// SDKPayloads returns the selected payloads that are SDKPayload values,
// in selection order.
func (r *Result) SDKPayloads() []manifest.SDKPayload {
	var out []manifest.SDKPayload
	for _, key := range r.Order {
		if p, ok := r.Items[key].(manifest.SDKPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

var buildToolsDependencySuffix = ".x86.x64"

// DiscoverCRTVersion implements §4.6.1.
func DiscoverCRTVersion(idx manifest.PackageIndex, cfg *config.Configuration) (string, error) {
	items, ok := idx["Microsoft.VisualStudio.Product.BuildTools"]
	if !ok || len(items) == 0 {
		return "", &xwinerr.MissingPackageError{Message: "Microsoft.VisualStudio.Product.BuildTools not found in manifest"}
	}
	if len(items) != 1 {
		return "", &xwinerr.MalformedJSONError{Message: "multiple Microsoft.VisualStudio.Product.BuildTools entries"}
	}

	var candidates []string
	for key := range items[0].Dependencies {
		if !strings.HasSuffix(key, buildToolsDependencySuffix) {
			continue
		}
		if ver, ok := extractFourDottedSegments(key); ok {
			candidates = append(candidates, ver)
		}
	}
	if len(candidates) == 0 {
		return "", &xwinerr.MissingPackageError{Message: "no CRT version candidates found in BuildTools dependencies"}
	}

	if cfg.CRTVersion != "" {
		for _, c := range candidates {
			if c == cfg.CRTVersion {
				return c, nil
			}
		}
		return "", &xwinerr.UnsupportedPackageConfigurationError{
			Message: fmt.Sprintf("crt_version %q is not offered by this manifest", cfg.CRTVersion),
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if manifest.CompareDottedVersions(c, best) > 0 {
			best = c
		}
	}
	return best, nil
}

// extractFourDottedSegments finds the first four consecutive
// all-numeric dot-separated segments in a dependency key such as
// "Microsoft.VC.14.44.17.14.CRT.x86.x64".
func extractFourDottedSegments(s string) (string, bool) {
	parts := strings.Split(s, ".")
	for i := 0; i+4 <= len(parts); i++ {
		window := parts[i : i+4]
		allNumeric := true
		for _, p := range window {
			if !isAllDigits(p) {
				allNumeric = false
				break
			}
		}
		if allNumeric {
			return strings.Join(window, "."), true
		}
	}
	return "", false
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// detectArchFromID infers target architecture by substring check, per
// §4.6.2/§9: test arm64 before arm before x64 before x86. Header-like
// ids that match none of these default to ArchAll rather than erroring.
func detectArchFromID(id string, headerLike bool) (manifest.Architecture, error) {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "arm64"):
		return manifest.ArchARM64, nil
	case strings.Contains(lower, "arm"):
		return manifest.ArchARM, nil
	case strings.Contains(lower, "x64"):
		return manifest.ArchX86_64, nil
	case strings.Contains(lower, "x86"):
		return manifest.ArchX86, nil
	}
	if headerLike {
		return manifest.ArchAll, nil
	}
	return 0, &xwinerr.UnsupportedPackageConfigurationError{
		Message: fmt.Sprintf("cannot infer architecture from package id %q", id),
	}
}

// detectVariantFromID infers the CRT variant by substring check, per
// §4.6.2/§9: OneCore must be tested before Desktop (OneCore ids also
// contain "Desktop").
func detectVariantFromID(id string) manifest.Variant {
	switch {
	case strings.Contains(id, "OneCore"):
		return manifest.VariantOneCore
	case strings.Contains(id, "Desktop"):
		return manifest.VariantDesktop
	case strings.Contains(id, "Store"):
		return manifest.VariantStore
	default:
		return manifest.VariantAll
	}
}

func installSizeOf(sizes map[string]int64) *int64 {
	if v, ok := sizes["targetDrive"]; ok {
		return &v
	}
	return nil
}

func crtPayloadFromItem(item manifest.ManifestItem, kind manifest.PayloadType, crtVersion string, headerLike bool) (manifest.CRTPayload, error) {
	if len(item.Payloads) == 0 {
		return manifest.CRTPayload{}, &xwinerr.MissingFieldError{Field: "payloads", Message: "item " + item.ID + " has no payloads"}
	}
	arch, err := detectArchFromID(item.ID, headerLike)
	if err != nil {
		return manifest.CRTPayload{}, err
	}
	variant := manifest.VariantAll
	if !headerLike {
		variant = detectVariantFromID(item.ID)
	}
	payload := item.Payloads[0]
	return manifest.CRTPayload{
		Filename:        payload.FileName,
		Kind:            kind,
		SHA256:          payload.SHA256,
		Size:            payload.Size,
		TargetArch:      arch,
		URL:             payload.URL,
		Version:         crtVersion,
		InstallSize:     installSizeOf(item.InstallSizes),
		Variant:         variant,
		SpectreHardened: strings.Contains(strings.ToLower(item.ID), "spectre"),
	}, nil
}

func unsupported(id string) error {
	return &xwinerr.UnsupportedPackageConfigurationError{Message: fmt.Sprintf("package id %q not found in manifest", id)}
}

// SelectCRTAndATL implements §4.6.2.
func SelectCRTAndATL(idx manifest.PackageIndex, cfg *config.Configuration, crtVersion string) (*Result, error) {
	res := newResult()

	headerID := fmt.Sprintf("Microsoft.VC.%s.CRT.Headers.base", crtVersion)
	headerItem, ok := idx.First(headerID)
	if !ok {
		return nil, unsupported(headerID)
	}
	headerPayload, err := crtPayloadFromItem(headerItem, manifest.PayloadCrtHeaders, crtVersion, true)
	if err != nil {
		return nil, err
	}
	res.put(headerID, headerPayload)

	for _, arch := range cfg.ArchSet() {
		for _, variant := range cfg.VariantSet() {
			id := fmt.Sprintf("Microsoft.VC.%s.CRT.%s.%s.base", crtVersion, arch.CRTIdentifier(), variant.String())
			item, ok := idx.First(id)
			if !ok {
				return nil, unsupported(id)
			}
			payload, err := crtPayloadFromItem(item, manifest.PayloadCrtLibs, crtVersion, false)
			if err != nil {
				return nil, err
			}
			res.put(id, payload)

			if cfg.IncludeSpectre && variant != manifest.VariantStore {
				spectreID := fmt.Sprintf("Microsoft.VC.%s.CRT.%s.%s.spectre.base", crtVersion, arch.CRTIdentifier(), variant.String())
				spectreItem, ok := idx.First(spectreID)
				if !ok {
					return nil, unsupported(spectreID)
				}
				spectrePayload, err := crtPayloadFromItem(spectreItem, manifest.PayloadCrtLibs, crtVersion, false)
				if err != nil {
					return nil, err
				}
				spectrePayload.SpectreHardened = true
				res.put(spectreID, spectrePayload)
			}
		}
	}

	if !cfg.IncludeATL {
		return res, nil
	}

	atlHeaderID := fmt.Sprintf("Microsoft.VC.%s.ATL.Headers.base", crtVersion)
	atlHeaderItem, ok := idx.First(atlHeaderID)
	if !ok {
		return nil, unsupported(atlHeaderID)
	}
	atlHeaderPayload, err := crtPayloadFromItem(atlHeaderItem, manifest.PayloadAtlHeaders, crtVersion, true)
	if err != nil {
		return nil, err
	}
	res.put(atlHeaderID, atlHeaderPayload)

	for _, arch := range cfg.ArchSet() {
		id := fmt.Sprintf("Microsoft.VC.%s.ATL.%s.base", crtVersion, arch.ATLIdentifier())
		item, ok := idx.First(id)
		if !ok {
			return nil, unsupported(id)
		}
		payload, err := crtPayloadFromItem(item, manifest.PayloadAtlLibs, crtVersion, false)
		if err != nil {
			return nil, err
		}
		res.put(id, payload)

		if cfg.IncludeSpectre {
			spectreID := fmt.Sprintf("Microsoft.VC.%s.ATL.%s.Spectre.base", crtVersion, arch.ATLIdentifier())
			spectreItem, ok := idx.First(spectreID)
			if !ok {
				return nil, unsupported(spectreID)
			}
			spectrePayload, err := crtPayloadFromItem(spectreItem, manifest.PayloadAtlLibs, crtVersion, false)
			if err != nil {
				return nil, err
			}
			spectrePayload.SpectreHardened = true
			res.put(spectreID, spectrePayload)
		}
	}

	return res, nil
}

var sdkKeyPattern = regexp.MustCompile(`^Win(\d+)SDK_(\d+\.\d+\.\d+)$`)

// DiscoverSDKVersion implements §4.6.3.
func DiscoverSDKVersion(idx manifest.PackageIndex, cfg *config.Configuration) (string, error) {
	if cfg.SDKVersion != "" {
		if _, ok := idx[cfg.SDKVersion]; !ok {
			return "", &xwinerr.UnsupportedPackageConfigurationError{
				Message: fmt.Sprintf("sdk_version %q is not offered by this manifest", cfg.SDKVersion),
			}
		}
		return cfg.SDKVersion, nil
	}

	type candidate struct {
		key     string
		winVer  int
		version string
	}
	var candidates []candidate
	for key := range idx {
		m := sdkKeyPattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		w, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{key: key, winVer: w, version: m[2]})
	}
	if len(candidates) == 0 {
		return "", &xwinerr.MissingPackageError{Message: "no WinNSDK_* package found in manifest"}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.winVer > best.winVer || (c.winVer == best.winVer && manifest.CompareSemVerVersions(c.version, best.version) > 0) {
			best = c
		}
	}
	return best.key, nil
}

var requiredSDKHeaderSuffixes = []string{
	"Windows SDK Desktop Headers x86-x86_en-us.msi",
	"Windows SDK OnecoreUap Headers x86-x86_en-us.msi",
	"Windows SDK for Windows Store Apps Headers-x86_en-us.msi",
	"Windows SDK for Windows Store Apps Headers OnecoreUap-x86_en-us.msi",
}

const storeLibsSuffix = "Windows SDK for Windows Store Apps Libs-x86_en-us.msi"
const ucrtPackageID = "Microsoft.Windows.UniversalCRT.HeadersLibsSources.Msi"
const ucrtFileName = "Universal CRT Headers Libraries and Sources-x86_en-us.msi"

func canonicalizeSDKFilename(raw string, kind manifest.PayloadType, sdkKey string) string {
	s := strings.ToLower(raw)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, `\`, "_")
	if kind == manifest.PayloadCabFile {
		return strings.TrimPrefix(s, "installers_")
	}
	return strings.ToLower(sdkKey) + "_" + s
}

func sdkPayloadFrom(p manifest.ManifestPayload, kind manifest.PayloadType, arch manifest.Architecture, sdkVersion, sdkKey string, installSizes map[string]int64) manifest.SDKPayload {
	return manifest.SDKPayload{
		Filename:    canonicalizeSDKFilename(p.FileName, kind, sdkKey),
		Kind:        kind,
		SHA256:      p.SHA256,
		Size:        p.Size,
		TargetArch:  arch,
		URL:         p.URL,
		Version:     sdkVersion,
		InstallSize: installSizeOf(installSizes),
	}
}

func findPayloadByExactName(payloads []manifest.ManifestPayload, name string) (manifest.ManifestPayload, bool) {
	for _, p := range payloads {
		if p.FileName == name {
			return p, true
		}
	}
	return manifest.ManifestPayload{}, false
}

// SelectSDK implements §4.6.4.
func SelectSDK(idx manifest.PackageIndex, cfg *config.Configuration, sdkKey string) (*Result, error) {
	item, ok := idx.First(sdkKey)
	if !ok {
		return nil, &xwinerr.MissingPackageError{Message: "SDK package " + sdkKey + " not found"}
	}
	sdkVersion := sdkKey
	if pos := strings.IndexByte(sdkKey, '_'); pos >= 0 {
		sdkVersion = sdkKey[pos+1:]
	}

	res := newResult()

	foundHeaders := make(map[string]manifest.ManifestPayload, len(requiredSDKHeaderSuffixes))
	for _, p := range item.Payloads {
		for _, suffix := range requiredSDKHeaderSuffixes {
			if strings.HasSuffix(p.FileName, suffix) {
				foundHeaders[suffix] = p
			}
		}
	}
	if len(foundHeaders) != len(requiredSDKHeaderSuffixes) {
		return nil, &xwinerr.MissingPackageError{Message: "not all required SDK header MSIs are present in " + sdkKey}
	}
	for _, suffix := range requiredSDKHeaderSuffixes {
		p := foundHeaders[suffix]
		res.put(sdkKey+"#header#"+suffix, sdkPayloadFrom(p, manifest.PayloadSdkHeaders, manifest.ArchAll, sdkVersion, sdkKey, item.InstallSizes))
	}

	for _, arch := range cfg.ArchSet() {
		headerName := fmt.Sprintf(`Installers\Windows SDK Desktop Headers %s-x86_en-us.msi`, arch.String())
		headerPayload, ok := findPayloadByExactName(item.Payloads, headerName)
		if !ok {
			return nil, &xwinerr.MissingPackageError{Message: headerName + " not found in " + sdkKey}
		}
		res.put(sdkKey+"#"+headerName, sdkPayloadFrom(headerPayload, manifest.PayloadSdkHeaders, arch, sdkVersion, sdkKey, item.InstallSizes))

		libName := fmt.Sprintf(`Installers\Windows SDK Desktop Libs %s-x86_en-us.msi`, arch.String())
		libPayload, ok := findPayloadByExactName(item.Payloads, libName)
		if !ok {
			return nil, &xwinerr.MissingPackageError{Message: libName + " not found in " + sdkKey}
		}
		res.put(sdkKey+"#"+libName, sdkPayloadFrom(libPayload, manifest.PayloadSdkLibs, arch, sdkVersion, sdkKey, item.InstallSizes))
	}

	var storeLibs manifest.ManifestPayload
	storeLibsFound := false
	for _, p := range item.Payloads {
		if strings.HasSuffix(p.FileName, storeLibsSuffix) {
			storeLibs = p
			storeLibsFound = true
			break
		}
	}
	if !storeLibsFound {
		return nil, &xwinerr.MissingPackageError{Message: "store libs MSI not found in " + sdkKey}
	}
	res.put(sdkKey+"#storelibs", sdkPayloadFrom(storeLibs, manifest.PayloadSdkStoreLibs, manifest.ArchAll, sdkVersion, sdkKey, item.InstallSizes))

	ucrtItem, ok := idx.First(ucrtPackageID)
	if !ok {
		return nil, &xwinerr.MissingPackageError{Message: ucrtPackageID + " not found"}
	}
	ucrtPayload, ok := findPayloadByExactName(ucrtItem.Payloads, ucrtFileName)
	if !ok {
		return nil, &xwinerr.MissingPackageError{Message: ucrtFileName + " not found"}
	}
	res.put(sdkKey+"#ucrt", sdkPayloadFrom(ucrtPayload, manifest.PayloadUcrt, manifest.ArchAll, sdkVersion, sdkKey, ucrtItem.InstallSizes))

	for _, p := range item.Payloads {
		if strings.HasSuffix(strings.ToLower(p.FileName), ".cab") {
			res.put(sdkKey+"#cab#"+p.FileName, sdkPayloadFrom(p, manifest.PayloadCabFile, manifest.ArchAll, sdkVersion, sdkKey, item.InstallSizes))
		}
	}
	for _, p := range ucrtItem.Payloads {
		if strings.HasSuffix(strings.ToLower(p.FileName), ".cab") {
			res.put(sdkKey+"#cab#"+p.FileName, sdkPayloadFrom(p, manifest.PayloadCabFile, manifest.ArchAll, sdkVersion, sdkKey, ucrtItem.InstallSizes))
		}
	}

	return res, nil
}

// Select implements the full §4.6 pipeline: discover the CRT version,
// select CRT/ATL payloads, discover the SDK version, select SDK/UCRT
// payloads, and merge with right-bias as the original's `|` union does.
func Select(idx manifest.PackageIndex, cfg *config.Configuration) (*Result, error) {
	crtVersion, err := DiscoverCRTVersion(idx, cfg)
	if err != nil {
		return nil, err
	}
	crtResult, err := SelectCRTAndATL(idx, cfg, crtVersion)
	if err != nil {
		return nil, err
	}

	sdkKey, err := DiscoverSDKVersion(idx, cfg)
	if err != nil {
		return nil, err
	}
	sdkResult, err := SelectSDK(idx, cfg, sdkKey)
	if err != nil {
		return nil, err
	}

	crtResult.Merge(sdkResult)
	return crtResult, nil
}
