package clipboard

import (
	"errors"
	"testing"
)

func TestSetTextEmpty(t *testing.T) {
	for _, s := range []string{"", "  \n"} {
		if err := SetText(s); !errors.Is(err, ErrEmpty) {
			t.Errorf("SetText(%q) error = %v, want ErrEmpty", s, err)
		}
	}
}
