package browser

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenWith(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("override tests use unix binaries")
	}

	t.Run("launches the override with the url appended", func(t *testing.T) {
		assert.NoError(t, OpenWith([]string{"true", "--new-window"}, "http://127.0.0.1:1/"))
	})

	t.Run("missing binary reports an error", func(t *testing.T) {
		err := OpenWith([]string{"definitely-not-a-real-browser"}, "http://127.0.0.1:1/")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "definitely-not-a-real-browser")
	})
}
