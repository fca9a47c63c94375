// Package privilege reports whether the process may install a system-level
// tunnel listener and DNS override.
package privilege

// Checker reports whether the current process is elevated.
type Checker func() bool

// IsElevated reports whether the current process runs with administrator
// (Windows) or root (Unix) privileges.
func IsElevated() bool {
	return isElevated()
}

// Hint returns advice shown when a connect attempt is refused for lack of
// privileges.
func Hint() string {
	return hint
}
