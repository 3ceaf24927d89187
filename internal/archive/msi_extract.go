package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xwin-go/xwin/internal/archive/cab"
	"github.com/xwin-go/xwin/internal/archive/msi"
	"github.com/xwin-go/xwin/internal/log"
)

// skipDirectories are Windows SDK subtrees the sysroot has no use for;
// they are not descended and their files are never written.
var skipDirectories = map[string]bool{
	"AccChecker":      true,
	"AccScope":        true,
	"AppPerfAnalyzer": true,
	"Catalogs":        true,
	"DesignTime":      true,
	"en-US":           true,
	"SecureBoot":      true,
	"UIAVerify":       true,
	"XamlDiagnostics": true,
}

// msiDir is one node of the reconstructed directory tree.
type msiDir struct {
	id       string
	name     string
	children []*msiDir
}

// ExtractMSI opens the MSI installer database at src, decompresses its
// embedded cabinets, and writes out the subset of its directory tree
// that survives the skip-set, rooted at dest.
func ExtractMSI(src, dest string) error {
	db, err := msi.OpenDatabase(src)
	if err != nil {
		return fmt.Errorf("extracting msi %s: %w", src, err)
	}

	cabinets, err := decompressCabinets(db, filepath.Dir(src))
	if err != nil {
		return fmt.Errorf("extracting msi %s: %w", src, err)
	}

	tree := buildDirectoryTree(db)
	filesByDir := indexFilesByDirectory(db)

	logger := log.Default()
	for _, root := range tree {
		if err := walkDirectory(root, dest, true, filesByDir, cabinets, logger); err != nil {
			return fmt.Errorf("extracting msi %s: %w", src, err)
		}
	}
	logger.Debug("extracted msi", "src", src, "dest", dest)
	return nil
}

// decompressCabinets decompresses every cabinet referenced by the
// Media table and returns a lookup from the embedded file id (the
// MSI File table's File column) to its decompressed bytes. Microsoft
// ships the SDK/UCRT cabinets as separate files downloaded alongside
// the MSI rather than embedded CFB streams, so a leading "#" in the
// Cabinet column (the embedded-stream convention) is the exception,
// not the rule.
func decompressCabinets(db *msi.Database, siblingDir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	for _, m := range db.Media {
		cabinetName, _ := m["Cabinet"].(string)
		if cabinetName == "" {
			continue
		}

		var data []byte
		var err error
		if strings.HasPrefix(cabinetName, "#") {
			data, err = db.Cabinet(cabinetName)
		} else {
			data, err = readSiblingCabinet(siblingDir, cabinetName)
		}
		if err != nil {
			return nil, fmt.Errorf("reading cabinet %s: %w", cabinetName, err)
		}

		entries, err := cab.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing cabinet %s: %w", cabinetName, err)
		}
		for _, e := range entries {
			files[e.Name] = e.Data
		}
	}
	return files, nil
}

// readSiblingCabinet locates a cabinet file that was downloaded next
// to the MSI, matching case-insensitively since Media table entries
// and on-disk names don't always agree on case.
func readSiblingCabinet(dir, name string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			return os.ReadFile(filepath.Join(dir, e.Name()))
		}
	}
	return nil, fmt.Errorf("cabinet %q not found alongside %s", name, dir)
}

// buildDirectoryTree reconstructs the Directory table's parent/child
// relationships and returns the root-level directories: those with no
// parent, a parent equal to their own id, or a parent id that is not in
// the table.
func buildDirectoryTree(db *msi.Database) []*msiDir {
	byID := make(map[string]*msiDir, len(db.Directories))
	parentOf := make(map[string]string, len(db.Directories))

	for _, d := range db.Directories {
		id, _ := d["Directory"].(string)
		defaultDir, _ := d["DefaultDir"].(string)
		parent, _ := d["Directory_Parent"].(string)
		byID[id] = &msiDir{id: id, name: directoryAttributeName(defaultDir)}
		parentOf[id] = parent
	}

	var roots []*msiDir
	for id, node := range byID {
		parent := parentOf[id]
		if parent == "" || parent == id || byID[parent] == nil {
			roots = append(roots, node)
			continue
		}
		byID[parent].children = append(byID[parent].children, node)
	}
	return roots
}

// directoryAttributeName extracts the usable folder name from a
// DefaultDir value, which may carry a "short|long" pair.
func directoryAttributeName(defaultDir string) string {
	if idx := strings.IndexByte(defaultDir, '|'); idx >= 0 {
		return defaultDir[idx+1:]
	}
	return defaultDir
}

// fileEntry pairs a File table row's identity with its target name.
type fileEntry struct {
	fileID string
	name   string
}

// indexFilesByDirectory groups File rows by their owning directory id,
// resolved through the Component table's Directory_ column.
func indexFilesByDirectory(db *msi.Database) map[string][]fileEntry {
	componentDir := make(map[string]string, len(db.Components))
	for _, c := range db.Components {
		component, _ := c["Component"].(string)
		dir, _ := c["Directory_"].(string)
		componentDir[component] = dir
	}

	out := make(map[string][]fileEntry)
	for _, f := range db.Files {
		fileID, _ := f["File"].(string)
		component, _ := f["Component_"].(string)
		rawName, _ := f["FileName"].(string)
		dir, ok := componentDir[component]
		if !ok {
			continue
		}
		out[dir] = append(out[dir], fileEntry{fileID: fileID, name: directoryAttributeName(rawName)})
	}
	return out
}

// walkDirectory recreates one directory (honoring the root-level
// dot-split rule and the skip-set) and writes its resolvable files.
func walkDirectory(node *msiDir, parentPath string, rootLevel bool, filesByDir map[string][]fileEntry, cabinets map[string][]byte, logger log.Logger) error {
	name := node.name
	if rootLevel {
		if idx := strings.IndexByte(node.id, '.'); idx >= 0 {
			logger.Warn("ignoring GUID suffix on root directory id", "id", node.id, "suffix", node.id[idx+1:])
			name = node.id[:idx]
		} else {
			name = node.id
		}
	}

	if skipDirectories[name] {
		return nil
	}

	outDir := filepath.Join(parentPath, name)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for _, f := range filesByDir[node.id] {
		data, ok := cabinets[f.fileID]
		if !ok {
			logger.Debug("skipping unresolved msi file", "file", f.fileID, "dir", node.id)
			continue
		}
		target := filepath.Join(outDir, f.name)
		if !isPathWithinDirectory(outDir, target) {
			continue
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
	}

	for _, child := range node.children {
		if err := walkDirectory(child, outDir, false, filesByDir, cabinets, logger); err != nil {
			return err
		}
	}
	return nil
}
