//go:build !linux

package runner

// ForceKill is a command line option that makes the kernel kill the browser
// when the parent (Go) process dies.
//
// Note: only supported on Linux; a no-op elsewhere.
func ForceKill(m map[string]interface{}) error {
	return nil
}
