package peek

import (
	"fmt"
	"net/url"
	"path/filepath"
)

// targetPrefix turns an origin-form target into an absolute URI reference.
const targetPrefix = "schema://server"

// ResolvePath maps a request target to a path under root. The decoded URI
// path is used; query and fragment are dropped.
//
// No containment check is made: a target climbing out with ".." resolves
// outside root.
func ResolvePath(root, target string) (string, error) {
	u, err := url.Parse(targetPrefix + target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	return filepath.Join(root, filepath.FromSlash(u.Path)), nil
}
