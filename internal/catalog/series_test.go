package catalog

import (
	"reflect"
	"testing"
)

func TestDirectoryChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want []string
	}{
		{"/a/b/c.jpg", []string{"/a", "/a/b"}},
		{"/a/b/c/d/e.mp4", []string{"/a", "/a/b", "/a/b/c", "/a/b/c/d"}},
		{"/top.jpg", nil},
		{"/a/one.png", []string{"/a"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got := directoryChain(tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("directoryChain(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
