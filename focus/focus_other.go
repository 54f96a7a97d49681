//go:build !darwin

package focus

import "context"

func read(context.Context) (string, error) {
	return "", ErrUnsupported
}
