package artifact

// LibSuffixes returns the shared library extensions tried on goos, most
// preferred first.
func LibSuffixes(goos string) []string {
	switch goos {
	case "windows":
		return []string{".dll"}
	case "darwin":
		return []string{".dylib", ".so"}
	default:
		return []string{".so"}
	}
}

// ArchSuffix returns the library name suffix for goarch, or "" when the
// build has none.
func ArchSuffix(goarch string) string {
	switch goarch {
	case "amd64":
		return "_x86_64"
	case "arm64":
		return "_arm64"
	default:
		return ""
	}
}
