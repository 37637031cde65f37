//go:build windows
// +build windows

package backend

// Barrier is the non-unix fallback: best-effort sync via the underlying
// *os.File.
func Barrier(s Storage) error {
	osFile, err := s.Sys()
	if err != nil {
		return nil
	}
	return osFile.Sync()
}
